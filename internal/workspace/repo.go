package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/deckd/internal/apperr"
	"github.com/suPer8Hu/deckd/internal/common"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppendMode selects how array fields of a view are rewritten.
type AppendMode string

const (
	// AppendOptimistic guards each write with the row version and retries on conflict.
	AppendOptimistic AppendMode = "optimistic"
	// AppendLastWriteWins rewrites the whole field unconditionally; a concurrent
	// append can be lost.
	AppendLastWriteWins AppendMode = "last_write_wins"
)

func ParseAppendMode(s string) (AppendMode, error) {
	switch AppendMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", AppendOptimistic:
		return AppendOptimistic, nil
	case AppendLastWriteWins:
		return AppendLastWriteWins, nil
	}
	return "", fmt.Errorf("unknown view append mode %q", s)
}

const defaultAppendRetries = 5

type Repo struct {
	db         *gorm.DB
	mode       AppendMode
	maxRetries int

	// afterRead runs between the read and the write of an array mutation.
	afterRead func(viewID string, attempt int)
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, mode: AppendOptimistic, maxRetries: defaultAppendRetries}
}

func (r *Repo) SetAppendMode(mode AppendMode, maxRetries int) {
	if maxRetries <= 0 {
		maxRetries = defaultAppendRetries
	}
	r.mode = mode
	r.maxRetries = maxRetries
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Session{}, &View{}, &Asset{})
}

func (r *Repo) CreateSession(ctx context.Context) (*Session, error) {
	const op = "workspace.CreateSession"

	id, err := common.NewULID()
	if err != nil {
		return nil, apperr.E(apperr.Persistence, op, "failed to create session", err)
	}
	s := &Session{ID: id, WorkDate: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, apperr.E(apperr.Persistence, op, "failed to create session", err)
	}
	if s.ID == "" {
		return nil, apperr.E(apperr.Persistence, op, "failed to create session: missing id", nil)
	}
	s.Views = []View{}
	return s, nil
}

// CreateViews inserts views in the given order. Empty input performs no write.
func (r *Repo) CreateViews(ctx context.Context, sessionID string, seeds []ViewSeed) ([]View, error) {
	const op = "workspace.CreateViews"

	if len(seeds) == 0 {
		return []View{}, nil
	}

	base := time.Now().UTC()
	views := make([]View, 0, len(seeds))
	for i, seed := range seeds {
		id, err := common.NewULID()
		if err != nil {
			return nil, apperr.E(apperr.Persistence, op, "failed to create views", err)
		}
		edited := datatypes.JSONSlice[string](seed.EditedImages)
		if edited == nil {
			edited = datatypes.JSONSlice[string]{}
		}
		history := datatypes.JSONSlice[ChatEntry](seed.ChatHistory)
		if history == nil {
			history = datatypes.JSONSlice[ChatEntry]{}
		}
		views = append(views, View{
			ID:            id,
			SessionID:     sessionID,
			OriginalImage: seed.OriginalImage,
			EditedImages:  edited,
			ChatHistory:   history,
			// distinct timestamps keep listing order equal to insertion order
			CreatedAt:    base.Add(time.Duration(i) * time.Microsecond),
			AssetLibrary: []Asset{},
		})
	}

	if err := r.db.WithContext(ctx).Omit("AssetLibrary").Create(&views).Error; err != nil {
		return nil, apperr.E(apperr.Persistence, op, "failed to create views", err)
	}
	return views, nil
}

func (r *Repo) GetView(ctx context.Context, viewID string) (*View, error) {
	var v View
	if err := r.db.WithContext(ctx).First(&v, "id = ?", viewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, "workspace.GetView", "view not found", err)
		}
		return nil, apperr.E(apperr.Persistence, "workspace.GetView", "failed to load view", err)
	}
	return &v, nil
}

// AppendEditedImage returns edited_images as this caller wrote it.
func (r *Repo) AppendEditedImage(ctx context.Context, viewID, url string) ([]string, error) {
	var out []string
	err := r.mutateView(ctx, "workspace.AppendEditedImage", viewID, "edited_images", func(v *View) any {
		out = append(append([]string{}, v.EditedImages...), url)
		return datatypes.JSONSlice[string](out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveLatestEditedImage drops the last element; an empty array is a no-op.
func (r *Repo) RemoveLatestEditedImage(ctx context.Context, viewID string) ([]string, error) {
	var out []string
	err := r.mutateView(ctx, "workspace.RemoveLatestEditedImage", viewID, "edited_images", func(v *View) any {
		out = append([]string{}, v.EditedImages...)
		if len(out) > 0 {
			out = out[:len(out)-1]
		}
		return datatypes.JSONSlice[string](out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) AppendChatEntry(ctx context.Context, viewID string, entry ChatEntry) ([]ChatEntry, error) {
	var out []ChatEntry
	err := r.mutateView(ctx, "workspace.AppendChatEntry", viewID, "chat_history", func(v *View) any {
		out = append(append([]ChatEntry{}, v.ChatHistory...), entry)
		return datatypes.JSONSlice[ChatEntry](out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) RemoveLatestChatEntry(ctx context.Context, viewID string) ([]ChatEntry, error) {
	var out []ChatEntry
	err := r.mutateView(ctx, "workspace.RemoveLatestChatEntry", viewID, "chat_history", func(v *View) any {
		out = append([]ChatEntry{}, v.ChatHistory...)
		if len(out) > 0 {
			out = out[:len(out)-1]
		}
		return datatypes.JSONSlice[ChatEntry](out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// mutateView reads one array column, applies fn and writes the result back.
// In optimistic mode the write only lands if the version is unchanged; a
// lost race re-reads and recomputes up to maxRetries times.
func (r *Repo) mutateView(ctx context.Context, op, viewID, column string, fn func(v *View) any) error {
	for attempt := 0; ; attempt++ {
		var v View
		err := r.db.WithContext(ctx).
			Select("id", "version", column).
			First(&v, "id = ?", viewID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.E(apperr.NotFound, op, "view not found", err)
			}
			return apperr.E(apperr.Persistence, op, "failed to read view", err)
		}
		if r.afterRead != nil {
			r.afterRead(viewID, attempt)
		}

		q := r.db.WithContext(ctx).Model(&View{}).Where("id = ?", viewID)
		if r.mode == AppendOptimistic {
			q = q.Where("version = ?", v.Version)
		}
		res := q.Updates(map[string]any{
			column:    fn(&v),
			"version": gorm.Expr("version + 1"),
		})
		if res.Error != nil {
			return apperr.E(apperr.Persistence, op, "failed to update view", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		if r.mode != AppendOptimistic {
			return apperr.E(apperr.NotFound, op, "view not found", nil)
		}
		if attempt+1 >= r.maxRetries {
			return apperr.E(apperr.Conflict, op, "view was modified concurrently, retry the request", nil)
		}
	}
}

func (r *Repo) InsertAsset(ctx context.Context, viewID, name, url string) (*Asset, error) {
	const op = "workspace.InsertAsset"

	id, err := common.NewULID()
	if err != nil {
		return nil, apperr.E(apperr.Persistence, op, "failed to insert asset", err)
	}
	a := &Asset{ID: id, ViewID: viewID, Name: name, URL: url}
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, apperr.E(apperr.Persistence, op, "failed to insert asset", err)
	}
	return a, nil
}

func (r *Repo) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var a Asset
	if err := r.db.WithContext(ctx).First(&a, "id = ?", assetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.E(apperr.NotFound, "workspace.GetAsset", "asset not found", err)
		}
		return nil, apperr.E(apperr.Persistence, "workspace.GetAsset", "failed to load asset", err)
	}
	return &a, nil
}

// UpdateAsset merges the given fields. An empty patch returns the current record.
func (r *Repo) UpdateAsset(ctx context.Context, assetID string, patch AssetPatch) (*Asset, error) {
	const op = "workspace.UpdateAsset"

	a, err := r.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return a, nil
	}

	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.URL != nil {
		updates["url"] = *patch.URL
	}
	res := r.db.WithContext(ctx).Model(&Asset{}).Where("id = ?", assetID).Updates(updates)
	if res.Error != nil {
		return nil, apperr.E(apperr.Persistence, op, "failed to update asset", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.E(apperr.NotFound, op, "asset not found", nil)
	}
	return r.GetAsset(ctx, assetID)
}

func (r *Repo) DeleteAsset(ctx context.Context, assetID string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", assetID).Delete(&Asset{}).Error; err != nil {
		return apperr.E(apperr.Persistence, "workspace.DeleteAsset", "failed to delete asset", err)
	}
	return nil
}

// DeleteView removes the view's assets, then the view.
func (r *Repo) DeleteView(ctx context.Context, viewID string) error {
	const op = "workspace.DeleteView"

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&View{}).Where("id = ?", viewID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.E(apperr.NotFound, op, "view not found", nil)
		}
		if err := tx.Where("view_id = ?", viewID).Delete(&Asset{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", viewID).Delete(&View{}).Error
	})
	return wrapTx(op, "failed to delete view", err)
}

// DeleteSession cascades assets, then views, then the session row.
func (r *Repo) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "workspace.DeleteSession"

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Session{}).Where("id = ?", sessionID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.E(apperr.NotFound, op, "session not found", nil)
		}

		var viewIDs []string
		if err := tx.Model(&View{}).Where("session_id = ?", sessionID).Pluck("id", &viewIDs).Error; err != nil {
			return err
		}
		if len(viewIDs) > 0 {
			if err := tx.Where("view_id IN ?", viewIDs).Delete(&Asset{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", viewIDs).Delete(&View{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", sessionID).Delete(&Session{}).Error
	})
	return wrapTx(op, "failed to delete session", err)
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ListSessions returns the newest sessions with nested views and asset libraries.
func (r *Repo) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	var sessions []Session
	err := r.db.WithContext(ctx).
		Preload("Views", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Views.AssetLibrary", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Order("work_date DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, apperr.E(apperr.Persistence, "workspace.ListSessions", "failed to list sessions", err)
	}

	for i := range sessions {
		if sessions[i].Views == nil {
			sessions[i].Views = []View{}
		}
		for j := range sessions[i].Views {
			if sessions[i].Views[j].AssetLibrary == nil {
				sessions[i].Views[j].AssetLibrary = []Asset{}
			}
		}
	}
	return sessions, nil
}

func wrapTx(op, msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.E(apperr.Persistence, op, msg, err)
}
