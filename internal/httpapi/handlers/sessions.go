package handlers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/deckd/internal/common"
	"github.com/suPer8Hu/deckd/internal/generation"
	"github.com/suPer8Hu/deckd/internal/workspace"
)

type viewPayload struct {
	OriginalImage *string               `json:"original_image"`
	EditedImages  []string              `json:"edited_images"`
	ChatHistory   []workspace.ChatEntry `json:"chat_history"`
}

type createSessionReq struct {
	PropertyURL string        `json:"property_url"`
	Views       []viewPayload `json:"views"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidJSON, "invalid json")
		return
	}
	if !isHTTPURL(req.PropertyURL) {
		badRequest(c, CodeValidation, "property_url must be an http(s) url")
		return
	}

	views := make([]generation.ViewInput, 0, len(req.Views))
	for _, v := range req.Views {
		views = append(views, generation.ViewInput{
			OriginalImage: v.OriginalImage,
			EditedImages:  v.EditedImages,
			ChatHistory:   v.ChatHistory,
		})
	}

	created, err := h.Gen.CreateSession(jobContext(c), generation.CreateSessionRequest{
		PropertyURL: req.PropertyURL,
		Views:       views,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, created)
}

func (h *Handler) ListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	sessions, err := h.Views.ListSessions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	id := c.Param("session_id")
	if err := h.Views.DeleteSession(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"session_id": id})
}

func (h *Handler) GetView(c *gin.Context) {
	v, err := h.Views.GetView(c.Request.Context(), c.Param("view_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, v)
}

func (h *Handler) DeleteView(c *gin.Context) {
	id := c.Param("view_id")
	if err := h.Views.DeleteView(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"view_id": id})
}

type chatEntryReq struct {
	Role      workspace.Role `json:"role"`
	Message   string         `json:"message"`
	AssetName *string        `json:"asset_name"`
	AssetURL  *string        `json:"asset_url"`
}

func (h *Handler) AppendChat(c *gin.Context) {
	viewID := c.Param("view_id")

	var req chatEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidJSON, "invalid json")
		return
	}

	entry, err := workspace.NewChatEntry(req.Role, req.Message, req.AssetName, req.AssetURL)
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := h.Views.AppendChatEntry(c.Request.Context(), viewID, entry)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"view_id": viewID, "chat_history": history})
}

func (h *Handler) RemoveLatestChat(c *gin.Context) {
	viewID := c.Param("view_id")
	history, err := h.Views.RemoveLatestChatEntry(c.Request.Context(), viewID)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"view_id": viewID, "chat_history": history})
}

func (h *Handler) RemoveLatestEditedImage(c *gin.Context) {
	viewID := c.Param("view_id")
	edited, err := h.Views.RemoveLatestEditedImage(c.Request.Context(), viewID)
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"view_id": viewID, "edited_images": edited})
}

func (h *Handler) UploadAsset(c *gin.Context) {
	up, ok := readUpload(c, "file")
	if !ok {
		return
	}

	out, err := h.Gen.UploadAsset(c.Request.Context(), generation.AssetUpload{
		ViewID:       c.Param("view_id"),
		Name:         c.PostForm("name"),
		Instructions: c.PostForm("instructions"),
		File:         up,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, out)
}

type updateAssetReq struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
}

func (h *Handler) UpdateAsset(c *gin.Context) {
	viewID := c.Param("view_id")
	assetID := c.Param("asset_id")

	var req updateAssetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, CodeInvalidJSON, "invalid json")
		return
	}

	current, err := h.Views.GetAsset(c.Request.Context(), assetID)
	if err != nil {
		writeError(c, err)
		return
	}
	if current.ViewID != viewID {
		badRequest(c, CodeValidation, "asset does not belong to the specified view")
		return
	}

	asset, err := h.Views.UpdateAsset(c.Request.Context(), assetID, workspace.AssetPatch{Name: req.Name, URL: req.URL})
	if err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"asset": asset})
}

func (h *Handler) DeleteAsset(c *gin.Context) {
	assetID := c.Param("asset_id")
	if err := h.Gen.DeleteAsset(c.Request.Context(), c.Param("view_id"), assetID); err != nil {
		writeError(c, err)
		return
	}
	common.OK(c, gin.H{"status": "success", "asset_id": assetID})
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
