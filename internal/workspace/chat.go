package workspace

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/deckd/internal/apperr"
)

// NewChatEntry builds an entry stamped with a fresh id and the current UTC time.
// An empty role defaults to user.
func NewChatEntry(role Role, message string, assetName, assetURL *string) (ChatEntry, error) {
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return ChatEntry{}, apperr.E(apperr.Validation, "workspace.NewChatEntry", "role must be user or asset", nil)
	}
	if strings.TrimSpace(message) == "" {
		return ChatEntry{}, apperr.E(apperr.Validation, "workspace.NewChatEntry", "message is required", nil)
	}
	return ChatEntry{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   message,
		AssetName: assetName,
		AssetURL:  assetURL,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
