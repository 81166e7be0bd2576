package acquirer

import (
	"strings"

	"pix-gateway/internal/model"

	"github.com/samber/lo"
)

type RemoteStatus int

const (
	StatusUnknown RemoteStatus = iota
	StatusPending
	StatusPaid
	StatusExpired
)

func (s RemoteStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPaid:
		return "paid"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type vocabulary struct {
	normalize func(string) string
	paid      []string
	expired   []string
	pending   []string
}

func exact(s string) string { return s }

var vocabularies = map[model.Acquirer]vocabulary{
	model.AcquirerSpedPay: {
		normalize: strings.ToLower,
		paid:      []string{"paid", "authorized", "approved", "completed", "confirmed"},
		expired:   []string{"expired", "canceled", "cancelled", "refused"},
		pending:   []string{"waiting_payment", "pending", "processing", "created"},
	},
	model.AcquirerInter: {
		normalize: exact,
		paid:      []string{"CONCLUIDA"},
		expired:   []string{"REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP"},
		pending:   []string{"ATIVA"},
	},
	model.AcquirerAtivus: {
		normalize: strings.ToUpper,
		paid:      []string{"CONCLUIDO", "PAGO", "CONCLUÍDA", "PAID", "APPROVED"},
		expired:   []string{"EXPIRADO", "CANCELADO", "EXPIRED"},
		pending:   []string{"PENDENTE", "AGUARDANDO", "AGUARDANDO_PAGAMENTO", "PENDING", "WAITING_PAYMENT", "GERADO"},
	},
}

// MapStatus translates a provider status string. Strings outside the known
// vocabulary map to StatusUnknown; callers treat them as still pending.
func MapStatus(a model.Acquirer, raw string) RemoteStatus {
	vocab, ok := vocabularies[a]
	if !ok {
		return StatusUnknown
	}

	status := vocab.normalize(strings.TrimSpace(raw))
	switch {
	case lo.Contains(vocab.paid, status):
		return StatusPaid
	case lo.Contains(vocab.expired, status):
		return StatusExpired
	case lo.Contains(vocab.pending, status):
		return StatusPending
	default:
		return StatusUnknown
	}
}
