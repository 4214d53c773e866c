// Package location provides the hierarchical storage-location catalog.
// Locations form a tree per (tenant, legal entity, warehouse); the path of
// every node is the slash-joined chain of uppercase ancestor codes, and a
// code rename cascades a path rewrite to the whole subtree.
package location

import (
	"context"
	"strings"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// Type defines what kind of counterpart a location represents.
type Type string

const (
	TypeInternal   Type = "internal"
	TypeSupplier   Type = "supplier"
	TypeCustomer   Type = "customer"
	TypeLoss       Type = "loss"
	TypeTransit    Type = "transit"
	TypeProduction Type = "production"
)

// Usage defines the operational role of a location inside a warehouse.
type Usage string

const (
	UsageStorage   Usage = "storage"
	UsagePicking   Usage = "picking"
	UsageReceiving Usage = "receiving"
	UsageShipping  Usage = "shipping"
	UsageScrap     Usage = "scrap"
	UsageTransit   Usage = "transit"
	UsageVirtual   Usage = "virtual"
)

// Location is a node of the storage-location tree.
type Location struct {
	ID    id.ID       `db:"id" json:"id"`
	Scope scope.Scope `db:"scope" json:"scope"`

	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	ParentID    *id.ID `db:"parent_location_id" json:"parentLocationId,omitempty"`

	Name string `db:"name" json:"name"`

	// Code is unique within (tenant, legal entity, warehouse). Uppercase.
	Code string `db:"code" json:"code"`

	// Level is the depth in the tree, root = 1.
	Level int `db:"level" json:"level"`

	// Path is the slash-joined chain of uppercase codes from the
	// warehouse root down to this node. Invariant:
	// path = parent.path + "/" + code.
	Path string `db:"path" json:"path"`

	Type   Type  `db:"type" json:"type"`
	Usage  Usage `db:"usage" json:"usage"`
	Active bool  `db:"active" json:"active"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// canonicalRoot describes one of the five locations every warehouse is
// bootstrapped with.
type canonicalRoot struct {
	Code  string
	Name  string
	Type  Type
	Usage Usage
}

// CanonicalRoots are created idempotently for each warehouse.
var CanonicalRoots = []canonicalRoot{
	{Code: "STOCK", Name: "Stock", Type: TypeInternal, Usage: UsageStorage},
	{Code: "RECEIVING", Name: "Receiving", Type: TypeInternal, Usage: UsageReceiving},
	{Code: "SHIPPING", Name: "Shipping", Type: TypeInternal, Usage: UsageShipping},
	{Code: "TRANSIT", Name: "Transit", Type: TypeTransit, Usage: UsageTransit},
	{Code: "SCRAP", Name: "Scrap", Type: TypeLoss, Usage: UsageScrap},
}

// NormalizeCode uppercases and trims a location code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ChildPath builds the path of a child under parentPath.
func ChildPath(parentPath, code string) string {
	return parentPath + "/" + NormalizeCode(code)
}

// ParentPath returns the path with the last segment stripped.
// Empty string for a single-segment path.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// RewritePath replaces the oldPrefix of path with newPrefix.
// The caller guarantees path starts with oldPrefix + "/".
func RewritePath(path, oldPrefix, newPrefix string) string {
	return newPrefix + strings.TrimPrefix(path, oldPrefix)
}

// Validate checks the internal invariants of the location.
func (l *Location) Validate(ctx context.Context) error {
	if err := l.Scope.Validate(); err != nil {
		return err
	}
	if id.IsNil(l.WarehouseID) {
		return apperror.NewInvalidInput("warehouse is required").WithDetail("field", "warehouseId")
	}
	if strings.TrimSpace(l.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if l.Code == "" {
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	}
	if strings.Contains(l.Code, "/") {
		return apperror.NewValidation("code must not contain '/'").WithDetail("field", "code")
	}
	if !isValidType(l.Type) {
		return apperror.NewValidation("invalid location type").
			WithDetail("field", "type").
			WithDetail("value", string(l.Type))
	}
	if !isValidUsage(l.Usage) {
		return apperror.NewValidation("invalid location usage").
			WithDetail("field", "usage").
			WithDetail("value", string(l.Usage))
	}
	if l.Level < 1 {
		return apperror.NewValidation("level must be at least 1").WithDetail("field", "level")
	}
	if !strings.HasSuffix(l.Path, "/"+l.Code) && l.Path != l.Code {
		return apperror.NewValidation("path must end with code").
			WithDetail("path", l.Path).
			WithDetail("code", l.Code)
	}
	return nil
}

func isValidType(t Type) bool {
	switch t {
	case TypeInternal, TypeSupplier, TypeCustomer, TypeLoss, TypeTransit, TypeProduction:
		return true
	}
	return false
}

func isValidUsage(u Usage) bool {
	switch u {
	case UsageStorage, UsagePicking, UsageReceiving, UsageShipping, UsageScrap, UsageTransit, UsageVirtual:
		return true
	}
	return false
}

// TreeNode is a location with its children, as returned by GetTree.
type TreeNode struct {
	*Location
	Children []*TreeNode `json:"children"`
}
