package idhash

import "testing"

func TestComputeRecordID(t *testing.T) {
	tests := []struct {
		name      string
		op        string
		user      string
		allyMint  string
		amount    uint64
		timestamp int64
	}{
		{
			name:      "claim",
			op:        "claim",
			user:      "UserAddr123",
			allyMint:  "AllyMint456",
			amount:    1_000_000,
			timestamp: 1_700_000_000,
		},
		{
			name:      "convert",
			op:        "convert",
			user:      "UserAddr123",
			allyMint:  "AllyMint456",
			amount:    500_000,
			timestamp: 1_700_000_060,
		},
		{
			name:      "zero amount",
			op:        "deposit",
			user:      "WithdrawAuth789",
			allyMint:  "AllyMint456",
			amount:    0,
			timestamp: 1_700_000_120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRecordID(tt.op, tt.user, tt.allyMint, tt.amount, tt.timestamp)
			if len(got) != 64 {
				t.Errorf("id length = %d, want 64", len(got))
			}

			// Deterministic: same inputs, same id.
			again := ComputeRecordID(tt.op, tt.user, tt.allyMint, tt.amount, tt.timestamp)
			if got != again {
				t.Errorf("id not deterministic: %s != %s", got, again)
			}
		})
	}
}

func TestComputeRecordIDUniqueness(t *testing.T) {
	base := ComputeRecordID("claim", "user", "ally", 100, 1_700_000_000)

	variants := []string{
		ComputeRecordID("convert", "user", "ally", 100, 1_700_000_000),
		ComputeRecordID("claim", "other", "ally", 100, 1_700_000_000),
		ComputeRecordID("claim", "user", "other", 100, 1_700_000_000),
		ComputeRecordID("claim", "user", "ally", 101, 1_700_000_000),
		ComputeRecordID("claim", "user", "ally", 100, 1_700_000_001),
	}

	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base id", i)
		}
	}
}
