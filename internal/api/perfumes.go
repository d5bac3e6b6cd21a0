package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/zulandar/perfumery/internal/models"
	"github.com/zulandar/perfumery/internal/perfume"
)

type listQuery struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `form:"offset" validate:"min=0"`
}

type perfumeSummary struct {
	Article  int     `json:"article"`
	Name     string  `json:"name"`
	FullName string  `json:"fullName"`
	ImageURL *string `json:"imageUrl"`
	Brand    string  `json:"brand"`
	Gender   string  `json:"gender"`
	Density  string  `json:"density"`
}

type createPerfumeRequest struct {
	Name        string           `json:"name" validate:"required"`
	FullName    string           `json:"fullName" validate:"required"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	ReleaseYear *int             `json:"releaseYear" validate:"omitempty,min=1800,max=2100"`
	BrandID     uint             `json:"brandId" validate:"required,min=1"`
	DensityID   uint             `json:"densityId" validate:"required,min=1"`
	GenderID    uint             `json:"genderId" validate:"required,min=1"`
}

type updatePerfumeRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1"`
	FullName    *string          `json:"fullName" validate:"omitempty,min=1"`
	Description optional[string] `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ReleaseYear optional[int]    `json:"releaseYear"`
	BrandID     *uint            `json:"brandId" validate:"omitempty,min=1"`
	DensityID   *uint            `json:"densityId" validate:"omitempty,min=1"`
	GenderID    *uint            `json:"genderId" validate:"omitempty,min=1"`
}

// updates converts the request into a column map for perfume.Update.
func (r updatePerfumeRequest) updates() map[string]interface{} {
	u := map[string]interface{}{}
	if r.Name != nil {
		u["name"] = *r.Name
	}
	if r.FullName != nil {
		u["full_name"] = *r.FullName
	}
	if r.Description.Set {
		u["description"] = r.Description.Value
	}
	if r.Price != nil {
		u["price"] = *r.Price
	}
	if r.ReleaseYear.Set {
		u["release_year"] = r.ReleaseYear.Value
	}
	if r.BrandID != nil {
		u["brand_id"] = *r.BrandID
	}
	if r.DensityID != nil {
		u["density_id"] = *r.DensityID
	}
	if r.GenderID != nil {
		u["gender_id"] = *r.GenderID
	}
	return u
}

func handleListPerfumes(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, http.StatusBadRequest, "invalid query: "+err.Error())
			return
		}
		if !validateStruct(c, q) {
			return
		}

		rows, err := perfume.List(deps.DB.WithContext(c.Request.Context()), perfume.ListOpts{Limit: q.Limit, Offset: q.Offset})
		if err != nil {
			perfumeError(c, deps, err)
			return
		}
		out := make([]perfumeSummary, 0, len(rows))
		for _, r := range rows {
			s := perfumeSummary{
				Article:  r.Article,
				Name:     r.Name,
				FullName: r.FullName,
				Brand:    r.Brand,
				Gender:   r.Gender,
				Density:  r.Density,
			}
			if r.MainImageURL != nil {
				url := deps.Images.URL(*r.MainImageURL)
				s.ImageURL = &url
			}
			out = append(out, s)
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleGetPerfume(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		article, ok := intParam(c, "article")
		if !ok {
			return
		}
		p, err := perfume.Get(deps.DB.WithContext(c.Request.Context()), article)
		if err != nil {
			perfumeError(c, deps, err)
			return
		}
		for i := range p.Images {
			p.Images[i] = publicImage(deps, p.Images[i])
		}
		c.JSON(http.StatusOK, p)
	}
}

func handleCreatePerfume(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createPerfumeRequest
		if !bindJSON(c, &req) {
			return
		}
		p, err := perfume.Create(deps.DB.WithContext(c.Request.Context()), perfume.CreateOpts{
			Name:        req.Name,
			FullName:    req.FullName,
			Description: req.Description,
			Price:       *req.Price,
			ReleaseYear: req.ReleaseYear,
			BrandID:     req.BrandID,
			DensityID:   req.DensityID,
			GenderID:    req.GenderID,
		})
		if err != nil {
			perfumeError(c, deps, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func handleUpdatePerfume(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		article, ok := intParam(c, "article")
		if !ok {
			return
		}
		var req updatePerfumeRequest
		if !bindJSON(c, &req) {
			return
		}
		if y := req.ReleaseYear.Value; y != nil && (*y < 1800 || *y > 2100) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "validation failed",
				"details": map[string]string{"releaseYear": "must be between 1800 and 2100"},
			})
			return
		}
		p, err := perfume.Update(deps.DB.WithContext(c.Request.Context()), article, req.updates())
		if err != nil {
			perfumeError(c, deps, err)
			return
		}
		for i := range p.Images {
			p.Images[i] = publicImage(deps, p.Images[i])
		}
		c.JSON(http.StatusOK, p)
	}
}

func handleDeletePerfume(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		article, ok := intParam(c, "article")
		if !ok {
			return
		}
		if err := perfume.Delete(deps.DB.WithContext(c.Request.Context()), article); err != nil {
			perfumeError(c, deps, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func perfumeError(c *gin.Context, deps Deps, err error) {
	switch {
	case errors.Is(err, perfume.ErrNotFound):
		respondError(c, http.StatusNotFound, "perfume not found")
	case errors.Is(err, perfume.ErrInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		deps.Log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("perfume request failed")
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		respondError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

// publicImage rewrites the stored URL to the URL clients fetch.
func publicImage(deps Deps, img models.PerfumeImage) models.PerfumeImage {
	img.URL = deps.Images.URL(img.URL)
	return img
}
