package partnership

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/capalloc-api/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validCreateRequest() *CreateRequest {
	return &CreateRequest{
		Name: "Test Partners LP",
		Partners: []types.Partner{
			{
				PartnerID:           "GP",
				Name:                "General Partner",
				PartnerType:         "GENERAL",
				OwnershipPercentage: dec("0.5"),
				CapitalContributed:  dec("100000"),
			},
			{
				PartnerID:           "LP",
				Name:                "Limited Partner",
				PartnerType:         "LIMITED",
				OwnershipPercentage: dec("0.5"),
				CapitalContributed:  dec("100000"),
			},
		},
	}
}

func TestValidateCreateRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateRequest)
		wantErr bool
	}{
		{
			name:   "valid request",
			mutate: func(r *CreateRequest) {},
		},
		{
			name:    "no partners",
			mutate:  func(r *CreateRequest) { r.Partners = nil },
			wantErr: true,
		},
		{
			name: "partner without name or id",
			mutate: func(r *CreateRequest) {
				r.Partners[0].PartnerID = ""
				r.Partners[0].Name = ""
			},
			wantErr: true,
		},
		{
			name:    "duplicate partner id",
			mutate:  func(r *CreateRequest) { r.Partners[1].PartnerID = "GP" },
			wantErr: true,
		},
		{
			name:    "ownership above one",
			mutate:  func(r *CreateRequest) { r.Partners[0].OwnershipPercentage = dec("1.2") },
			wantErr: true,
		},
		{
			name:    "negative capital",
			mutate:  func(r *CreateRequest) { r.Partners[0].CapitalContributed = dec("-1") },
			wantErr: true,
		},
		{
			name: "ownership not summing to one is accepted",
			mutate: func(r *CreateRequest) {
				r.Partners[0].OwnershipPercentage = dec("0.45")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(req)

			err := validateCreateRequest(req)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPartnership)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPartnerSnapshot(t *testing.T) {
	p := &Partner{
		PartnerID:               "PRT_abc",
		Name:                    "Limited Partner",
		PartnerType:             "LIMITED",
		OwnershipPercentage:     dec("0.6"),
		ProfitSharingPercentage: dec("0.6"),
		LossSharingPercentage:   dec("0.6"),
		CapitalContributed:      dec("600000"),
		ReceivesPreferredReturn: true,
		PreferredReturnRate:     dec("0.08"),
	}

	snap := p.Snapshot()

	assert.Equal(t, "PRT_abc", snap.PartnerID)
	assert.Equal(t, "LIMITED", snap.PartnerType)
	assert.True(t, snap.OwnershipPercentage.Equal(dec("0.6")))
	assert.True(t, snap.CapitalContributed.Equal(dec("600000")))
	assert.True(t, snap.ReceivesPreferredReturn)
	assert.True(t, snap.PreferredReturnRate.Equal(dec("0.08")))
}
