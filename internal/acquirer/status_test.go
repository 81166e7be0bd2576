package acquirer

import (
	"testing"

	"pix-gateway/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		acquirer model.Acquirer
		raw      string
		expected RemoteStatus
	}{
		{model.AcquirerSpedPay, "paid", StatusPaid},
		{model.AcquirerSpedPay, "APPROVED", StatusPaid},
		{model.AcquirerSpedPay, "confirmed", StatusPaid},
		{model.AcquirerSpedPay, "waiting_payment", StatusPending},
		{model.AcquirerSpedPay, "refused", StatusExpired},
		{model.AcquirerSpedPay, "chargedback", StatusUnknown},
		{model.AcquirerInter, "CONCLUIDA", StatusPaid},
		{model.AcquirerInter, "concluida", StatusUnknown},
		{model.AcquirerInter, "ATIVA", StatusPending},
		{model.AcquirerInter, "REMOVIDA_PELO_PSP", StatusExpired},
		{model.AcquirerAtivus, "pago", StatusPaid},
		{model.AcquirerAtivus, "Concluída", StatusPaid},
		{model.AcquirerAtivus, "CONCLUIDO", StatusPaid},
		{model.AcquirerAtivus, "AGUARDANDO_PAGAMENTO", StatusPending},
		{model.AcquirerAtivus, "cancelado", StatusExpired},
		{model.AcquirerAtivus, "ESTORNADO", StatusUnknown},
		{model.Acquirer("other"), "paid", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.acquirer)+"/"+tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapStatus(tt.acquirer, tt.raw))
		})
	}
}
