package generation

import (
	"context"
	"path"
	"strings"

	"github.com/suPer8Hu/deckd/internal/apperr"
	"github.com/suPer8Hu/deckd/internal/artifact"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/workspace"
)

const (
	defaultUploadExt         = "png"
	defaultUploadContentType = "image/png"
)

type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

type Uploaded struct {
	FilePath  string `json:"file_path"`
	PublicURL string `json:"public_url"`
}

type AssetUpload struct {
	ViewID       string
	Name         string
	Instructions string
	File         Upload
}

type UploadedAsset struct {
	Asset     *workspace.Asset    `json:"asset"`
	PublicURL string              `json:"public_url"`
	ChatEntry workspace.ChatEntry `json:"chat_entry"`
}

// Upload stores raw bytes under the uploads folder. No job is involved.
func (s *Service) Upload(ctx context.Context, u Upload) (*Uploaded, error) {
	const op = "generation.Upload"

	if len(u.Data) == 0 {
		return nil, apperr.E(apperr.Validation, op, "file is required", nil)
	}
	p, err := s.putUpload(ctx, u, FolderUploads)
	if err != nil {
		return nil, err
	}
	return &Uploaded{FilePath: p, PublicURL: s.store.PublicURL(p)}, nil
}

func (s *Service) ListArtifacts(ctx context.Context) ([]artifact.Entry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []artifact.Entry{}
	}
	return entries, nil
}

// UploadAsset stores an asset image, records it in the view's library and
// logs it in the view's chat.
func (s *Service) UploadAsset(ctx context.Context, in AssetUpload) (*UploadedAsset, error) {
	const op = "generation.UploadAsset"

	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.E(apperr.Validation, op, "name is required", nil)
	}
	if len(in.File.Data) == 0 {
		return nil, apperr.E(apperr.Validation, op, "file is required", nil)
	}
	if _, err := s.repo.GetView(ctx, in.ViewID); err != nil {
		return nil, err
	}

	p, err := s.putUpload(ctx, in.File, "assets/"+in.ViewID)
	if err != nil {
		return nil, err
	}
	publicURL := s.store.PublicURL(p)

	asset, err := s.repo.InsertAsset(ctx, in.ViewID, in.Name, publicURL)
	if err != nil {
		s.orphan(ctx, op, p, err)
		return nil, err
	}

	content := in.Instructions
	if strings.TrimSpace(content) == "" {
		content = "Uploaded " + in.Name
	}
	name := in.Name
	entry, err := workspace.NewChatEntry(workspace.RoleAsset, content, &name, &publicURL)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.AppendChatEntry(ctx, in.ViewID, entry); err != nil {
		return nil, err
	}

	return &UploadedAsset{Asset: asset, PublicURL: publicURL, ChatEntry: entry}, nil
}

// DeleteAsset removes an asset record that belongs to viewID.
func (s *Service) DeleteAsset(ctx context.Context, viewID, assetID string) error {
	const op = "generation.DeleteAsset"

	asset, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.ViewID != viewID {
		return apperr.E(apperr.Validation, op, "asset does not belong to the specified view", nil)
	}
	return s.repo.DeleteAsset(ctx, assetID)
}

func (s *Service) putUpload(ctx context.Context, u Upload, folder string) (string, error) {
	ext := uploadExtension(u.Filename)
	ct := u.ContentType
	if ct == "" {
		ct = defaultUploadContentType
	}
	return s.store.Put(ctx, u.Data, common.RandomFileName(ext), ct, folder)
}

// uploadExtension takes the text after the last dot of the file name.
func uploadExtension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(path.Base(filename)), "."))
	if ext == "" {
		return defaultUploadExt
	}
	return ext
}
