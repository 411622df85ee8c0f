package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type productRequest struct {
	Name string `json:"name"`
	SKU  string `json:"sku"`
}

func (h *handlers) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Products.Create(c.Request.Context(), actorFrom(c), req.Name, req.SKU)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) listProducts(c *gin.Context) {
	out, err := h.svc.Products.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.svc.Products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
