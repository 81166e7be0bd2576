package acquirer

import (
	"testing"

	"pix-gateway/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		expected model.Acquirer
		ok       bool
	}{
		{name: "canonical uuid", id: "3f2b8c1e-9a4d-4e7b-8c21-5d6f7a8b9c0d", ok: false},
		{name: "uppercase uuid", id: "3F2B8C1E-9A4D-4E7B-8C21-5D6F7A8B9C0D", ok: false},
		{name: "opaque token", id: "Ab12Cd34Ef56Gh78Ij90Kl", expected: model.AcquirerAtivus, ok: true},
		{name: "opaque token 26 chars", id: "Xk9Qw2Lm7Rt4Vz8Bn3Hj6Pd5Fs", expected: model.AcquirerAtivus, ok: true},
		{name: "opaque token 20 chars", id: "a1B2c3D4e5F6g7H8i9J0", expected: model.AcquirerAtivus, ok: true},
		{name: "opaque token with spedpay prefix", id: "spdk9qw2lm7rt4vz8bn3hj6pd5fsxyzw", expected: model.AcquirerAtivus, ok: true},
		{name: "opaque token with inter prefix", id: "interMx7Qa2Ws9Ed4Rf6Tg8Yh1Uj3Ik5", expected: model.AcquirerAtivus, ok: true},
		{name: "opaque token too short", id: "Ab12Cd34Ef56Gh78Ij9", ok: false},
		{name: "opaque token with hyphen", id: "Ab12Cd34-Ef56Gh78Ij90Kl", ok: false},
		{name: "local spedpay reference", id: NewReference(model.AcquirerSpedPay), expected: model.AcquirerSpedPay, ok: true},
		{name: "local inter reference", id: NewReference(model.AcquirerInter), expected: model.AcquirerInter, ok: true},
		{name: "local ativus reference", id: NewReference(model.AcquirerAtivus), expected: model.AcquirerAtivus, ok: true},
		{name: "empty", id: "", ok: false},
		{name: "garbage", id: "not an id", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := Detect(tt.id)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, a)
		})
	}
}

func TestNewReference(t *testing.T) {
	for _, a := range model.Acquirers {
		ref := NewReference(a)
		assert.Len(t, ref, 32)

		detected, ok := IsLocalReference(ref)
		assert.True(t, ok)
		assert.Equal(t, a, detected)
	}

	assert.NotEqual(t, NewReference(model.AcquirerInter), NewReference(model.AcquirerInter))

	_, ok := IsLocalReference("spd123")
	assert.False(t, ok)
	_, ok = IsLocalReference("SPD0123456789abcdef0123456789abc")
	assert.False(t, ok)
	_, ok = IsLocalReference("spd0123456789abcdef0123456789xyz")
	assert.False(t, ok)
}
