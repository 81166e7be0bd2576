package acquirer

import (
	"context"
	"net/http"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Reais(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int64
	}{
		{name: "dot decimal", body: `{"valor":"10.00"}`, expected: 1000},
		{name: "comma decimal", body: `{"valor":"10,00"}`, expected: 1000},
		{name: "json number", body: `{"valor":10.5}`, expected: 1050},
		{name: "brazilian thousands", body: `{"valor":"1.234,56"}`, expected: 123456},
		{name: "english thousands", body: `{"valor":"1,234.56"}`, expected: 123456},
		{name: "brazilian millions without cents", body: `{"valor":"1.234.567"}`, expected: 123456700},
		{name: "currency prefix", body: `{"valor":"R$ 99,90"}`, expected: 9990},
		{name: "not a number", body: `{"valor":"dez reais"}`, expected: 0},
		{name: "missing", body: `{}`, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := decodeDocument([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, doc.reais("valor"))
		})
	}
}

func TestAtivus_TransactionWithThousandsSeparator(t *testing.T) {
	defer gock.Off()

	gock.New(ativusHost).
		Get("/getTransactionStatus.php").
		MatchParam("id_transaction", "Ab12Cd34Ef56Gh78Ij90Kl").
		Reply(http.StatusOK).
		JSON(map[string]any{"id_transaction": "Ab12Cd34Ef56Gh78Ij90Kl", "situacao": "PAGO", "valor": "1.234,56"})

	gateway := NewAtivus(ativusHost, "", "key-1", &http.Client{}, testLogger)

	tx, err := gateway.Transaction(context.Background(), "Ab12Cd34Ef56Gh78Ij90Kl")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), tx.Amount)
}
