package acquirer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCPF(t *testing.T) {
	for i := 0; i < 200; i++ {
		cpf := GenerateCPF()
		assert.Len(t, cpf, 11)
		assert.True(t, ValidCPF(cpf), cpf)
	}
}

func TestValidCPF(t *testing.T) {
	assert.True(t, ValidCPF("529.982.247-25"))
	assert.True(t, ValidCPF("52998224725"))
	assert.False(t, ValidCPF("52998224724"))
	assert.False(t, ValidCPF("11111111111"))
	assert.False(t, ValidCPF("5299822472"))
	assert.False(t, ValidCPF("529982247a5"))
}

func TestSynthesizeCustomer(t *testing.T) {
	anonymous := SynthesizeCustomer("  ")
	assert.Equal(t, defaultCustomerName, anonymous.Name)
	assert.True(t, ValidCPF(anonymous.Document))
	assert.Contains(t, anonymous.Email, "@")
	assert.Len(t, anonymous.Phone, 11)

	named := SynthesizeCustomer("Maria Silva")
	assert.Equal(t, "Maria Silva", named.Name)
}
