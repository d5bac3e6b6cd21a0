package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/perfumery/internal/image"
)

// multipartOverhead covers form fields and boundaries around the file.
const multipartOverhead = 64 << 10

type updateImageRequest struct {
	IsMain    *bool            `json:"isMain"`
	SortOrder *int             `json:"sortOrder" validate:"omitempty,min=1"`
	AltText   optional[string] `json:"altText"`
}

func handleUploadImage(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, deps.MaxUploadBytes+multipartOverhead)

		fh, err := c.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondError(c, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			respondError(c, http.StatusBadRequest, "file is required")
			return
		}
		rawArticle := c.PostForm("article")
		if rawArticle == "" {
			respondError(c, http.StatusBadRequest, "article is required")
			return
		}
		article, err := strconv.Atoi(rawArticle)
		if err != nil || article <= 0 {
			respondError(c, http.StatusBadRequest, "invalid article")
			return
		}
		var alt *string
		if v := strings.TrimSpace(c.PostForm("altText")); v != "" {
			alt = &v
		}

		f, err := fh.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "cannot read file")
			return
		}
		defer f.Close()

		img, err := deps.Images.Upload(c.Request.Context(), image.UploadOpts{Article: article, AltText: alt}, f)
		if err != nil {
			imageError(c, deps, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "image": publicImage(deps, *img)})
	}
}

func handleUpdateImage(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		var req updateImageRequest
		if !bindJSON(c, &req) {
			return
		}
		img, err := deps.Images.Update(c.Request.Context(), uint(id), image.UpdateOpts{
			IsMain:     req.IsMain,
			SortOrder:  req.SortOrder,
			AltText:    req.AltText.Value,
			SetAltText: req.AltText.Set,
		})
		if err != nil {
			imageError(c, deps, err)
			return
		}
		c.JSON(http.StatusOK, publicImage(deps, *img))
	}
}

func handleDeleteImage(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := intParam(c, "id")
		if !ok {
			return
		}
		if err := deps.Images.Delete(c.Request.Context(), uint(id)); err != nil {
			imageError(c, deps, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func imageError(c *gin.Context, deps Deps, err error) {
	switch {
	case errors.Is(err, image.ErrNotFound):
		respondError(c, http.StatusNotFound, "image not found")
	case errors.Is(err, image.ErrPerfumeNotFound):
		respondError(c, http.StatusBadRequest, "no perfume with this article")
	case errors.Is(err, image.ErrTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, "file too large")
	case errors.Is(err, image.ErrUnsupportedType):
		respondError(c, http.StatusBadRequest, "unsupported file type, only JPEG, PNG and WebP are accepted")
	case errors.Is(err, image.ErrCorrupt), errors.Is(err, image.ErrInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		deps.Log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("image request failed")
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}
