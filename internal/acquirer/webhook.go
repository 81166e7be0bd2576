package acquirer

import (
	"pix-gateway/internal/model"

	"github.com/pkg/errors"
)

var webhookTxidAliases = map[model.Acquirer][]string{
	model.AcquirerSpedPay: {"data.id", "id", "transaction.id", "objectId"},
	model.AcquirerInter:   {"pix.0.txid", "txid"},
	model.AcquirerAtivus:  {"idTransaction", "id_transaction", "transaction.id_transaction", "data.id_transaction"},
}

// ExtractWebhookTxid finds the ledger txid in a provider notification. The
// notification only triggers a status check; its contents are never trusted
// for settlement.
func ExtractWebhookTxid(a model.Acquirer, body []byte) (string, error) {
	aliases, ok := webhookTxidAliases[a]
	if !ok {
		return "", errors.Errorf("unknown acquirer %q", a)
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return "", err
	}

	txid := doc.str(aliases...)
	if txid == "" {
		return "", errors.Wrap(ErrInvalidResponse, "notification carries no transaction id")
	}
	return txid, nil
}
