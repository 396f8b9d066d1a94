package insights

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tradewatch/tradewatch/internal/models"
)

// InputIdentity pins one consulted snapshot. The digest is computed
// over these identities, not payload bytes, so regeneration triggers
// exactly when a newer snapshot row exists.
type InputIdentity struct {
	WidgetKey  string `json:"widget_key"`
	Scope      string `json:"scope"`
	SnapshotID int64  `json:"snapshot_id"`
	FetchedAt  int64  `json:"fetched_at"`
}

// IdentityOf builds the input identity for a snapshot row
func IdentityOf(snap *models.WidgetSnapshot) InputIdentity {
	return InputIdentity{
		WidgetKey:  snap.WidgetKey,
		Scope:      snap.Scope,
		SnapshotID: snap.ID,
		FetchedAt:  snap.FetchedAt.Unix(),
	}
}

// Digest computes the content-address of an input set: sha256 over the
// canonical JSON of the sorted identity list. Pure and wall-clock
// independent — the same inputs always digest the same.
func Digest(inputs []InputIdentity) string {
	sorted := make([]InputIdentity, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].WidgetKey != sorted[j].WidgetKey {
			return sorted[i].WidgetKey < sorted[j].WidgetKey
		}
		return sorted[i].Scope < sorted[j].Scope
	})

	raw, _ := json.Marshal(sorted)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// InputKeys renders the identities as stable strings stored alongside
// the insight for provenance.
func InputKeys(inputs []InputIdentity) []string {
	keys := make([]string, 0, len(inputs))
	for _, input := range inputs {
		keys = append(keys, fmt.Sprintf("%s|%s|%d", input.WidgetKey, input.Scope, input.SnapshotID))
	}
	sort.Strings(keys)
	return keys
}
