package cli

import (
	"bytes"
	"testing"
	"time"

	"pix-gateway/internal/model"
	"pix-gateway/internal/reconcile"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileRequestFromFlags(t *testing.T) {
	require.NoError(t, reconcileCmd.ParseFlags([]string{
		"--acquirer", " Ativus ",
		"--from", "2024-05-01",
		"--to", "2024-05-02",
		"--ids", "abc,def",
		"--merchant", "3f1c2b8e-6a0d-4c55-9d47-1b2e3f4a5b6c",
	}))
	t.Cleanup(func() { reconcileFlags.merchant, reconcileFlags.ids = "", nil })

	req, err := reconcileRequest()
	require.NoError(t, err)

	assert.Equal(t, model.AcquirerAtivus, req.Acquirer)
	assert.Equal(t, []string{"abc", "def"}, req.IDs)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *req.From)
	require.NotNil(t, req.MerchantID)
	assert.Equal(t, "3f1c2b8e-6a0d-4c55-9d47-1b2e3f4a5b6c", req.MerchantID.String())
}

func TestReconcileRequestRejectsBadMerchant(t *testing.T) {
	reconcileFlags.merchant = "not-a-uuid"
	t.Cleanup(func() { reconcileFlags.merchant = "" })

	_, err := reconcileRequest()
	assert.ErrorIs(t, err, reconcile.ErrInvalidRequest)
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, printJSON(cmd, map[string]int{"checked": 3}))
	assert.JSONEq(t, `{"checked": 3}`, out.String())
}

func TestLoadConfigFailsWithoutDatabase(t *testing.T) {
	configDir = t.TempDir()
	t.Cleanup(func() { configDir = "." })

	_, _, err := loadConfig()
	assert.Error(t, err)
}
