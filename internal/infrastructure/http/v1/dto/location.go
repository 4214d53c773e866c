package dto

import (
	"time"

	"stokado/internal/domain/location"
)

// BootstrapWarehouseRequest seeds the canonical location tree of a
// warehouse.
type BootstrapWarehouseRequest struct {
	WarehouseID   string `json:"warehouseId" binding:"required"`
	WarehouseCode string `json:"warehouseCode" binding:"required"`
}

// CreateLocationRequest adds a node to the tree.
type CreateLocationRequest struct {
	WarehouseID   string  `json:"warehouseId" binding:"required"`
	ParentID      *string `json:"parentLocationId"`
	Name          string  `json:"name" binding:"required"`
	Code          string  `json:"code" binding:"required"`
	Type          string  `json:"type"`
	Usage         string  `json:"usage"`
	WarehouseCode string  `json:"warehouseCode"`
}

// UpdateLocationRequest patches a node. Nil fields are left untouched.
type UpdateLocationRequest struct {
	Name   *string `json:"name"`
	Code   *string `json:"code"`
	Usage  *string `json:"usage"`
	Active *bool   `json:"active"`
}

// LocationResponse is the API shape of one location.
type LocationResponse struct {
	ID               string    `json:"id"`
	WarehouseID      string    `json:"warehouseId"`
	ParentLocationID *string   `json:"parentLocationId,omitempty"`
	Name             string    `json:"name"`
	Code             string    `json:"code"`
	Level            int       `json:"level"`
	Path             string    `json:"path"`
	Type             string    `json:"type"`
	Usage            string    `json:"usage"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// FromLocation converts a domain location.
func FromLocation(loc *location.Location) LocationResponse {
	resp := LocationResponse{
		ID:          loc.ID.String(),
		WarehouseID: loc.WarehouseID.String(),
		Name:        loc.Name,
		Code:        loc.Code,
		Level:       loc.Level,
		Path:        loc.Path,
		Type:        string(loc.Type),
		Usage:       string(loc.Usage),
		Active:      loc.Active,
		CreatedAt:   loc.CreatedAt,
		UpdatedAt:   loc.UpdatedAt,
	}
	if loc.ParentID != nil {
		s := loc.ParentID.String()
		resp.ParentLocationID = &s
	}
	return resp
}

// FromLocations converts a list.
func FromLocations(locs []*location.Location) []LocationResponse {
	out := make([]LocationResponse, 0, len(locs))
	for _, loc := range locs {
		out = append(out, FromLocation(loc))
	}
	return out
}

// TreeNodeResponse is one node of the nested location tree.
type TreeNodeResponse struct {
	LocationResponse
	Children []TreeNodeResponse `json:"children"`
}

// FromTree converts the nested tree.
func FromTree(nodes []*location.TreeNode) []TreeNodeResponse {
	out := make([]TreeNodeResponse, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, TreeNodeResponse{
			LocationResponse: FromLocation(node.Location),
			Children:         FromTree(node.Children),
		})
	}
	return out
}
