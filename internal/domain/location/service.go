package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/tenant"
	"stokado/pkg/logger"
)

// StockChecker reports whether any stock figures exist at a location.
// Implemented by the stock projection repository; used as a removal guard.
type StockChecker interface {
	HasStock(ctx context.Context, sc scope.Scope, locationID id.ID) (bool, error)
}

// Service provides business operations for the location catalog.
type Service struct {
	repo  Repository
	stock StockChecker
}

// NewService creates a new location catalog service.
func NewService(repo Repository, stock StockChecker) *Service {
	return &Service{repo: repo, stock: stock}
}

// runInTx wraps fn in a transaction when the request carries a TxManager
// (Database-per-Tenant mode); otherwise runs fn directly.
func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txm, err := tenant.GetTxManager(ctx); err == nil {
		return txm.RunInTransaction(ctx, fn)
	}
	return fn(ctx)
}

// BootstrapWarehouse creates whichever of the five canonical root
// locations are missing for the warehouse. Safe to call repeatedly.
func (s *Service) BootstrapWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID, warehouseCode string) ([]*Location, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if id.IsNil(warehouseID) {
		return nil, apperror.NewInvalidInput("warehouse is required").WithDetail("field", "warehouseId")
	}
	warehouseCode = NormalizeCode(warehouseCode)
	if warehouseCode == "" {
		return nil, apperror.NewInvalidInput("warehouse code is required").WithDetail("field", "warehouseCode")
	}

	existing, err := s.repo.ListByWarehouse(ctx, sc, warehouseID, false)
	if err != nil {
		return nil, fmt.Errorf("list warehouse locations: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, loc := range existing {
		have[loc.Code] = true
	}

	created := make([]*Location, 0, len(CanonicalRoots))
	for _, root := range CanonicalRoots {
		if have[root.Code] {
			continue
		}
		now := time.Now().UTC()
		loc := &Location{
			ID:          id.New(),
			Scope:       sc,
			WarehouseID: warehouseID,
			Name:        root.Name,
			Code:        root.Code,
			Level:       1,
			Path:        warehouseCode + "/" + root.Code,
			Type:        root.Type,
			Usage:       root.Usage,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Create(ctx, loc); err != nil {
			// A concurrent bootstrap won the race for this code.
			if errors.Is(err, ErrDuplicateCode) {
				continue
			}
			return nil, fmt.Errorf("create root location %s: %w", root.Code, err)
		}
		created = append(created, loc)
	}

	if len(created) > 0 {
		logger.Info(ctx, "warehouse bootstrapped",
			"warehouse_id", warehouseID,
			"created", len(created),
		)
	}
	return created, nil
}

// CreateInput carries the fields for creating a location.
type CreateInput struct {
	Scope       scope.Scope
	WarehouseID id.ID
	ParentID    *id.ID
	Name        string
	Code        string
	Type        Type
	Usage       Usage

	// WarehouseCode seeds the path of a root-level location. Required
	// when ParentID is not set.
	WarehouseCode string
}

// Create adds a location to the tree.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Location, error) {
	now := time.Now().UTC()
	loc := &Location{
		ID:          id.New(),
		Scope:       input.Scope,
		WarehouseID: input.WarehouseID,
		ParentID:    input.ParentID,
		Name:        strings.TrimSpace(input.Name),
		Code:        NormalizeCode(input.Code),
		Type:        input.Type,
		Usage:       input.Usage,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, input.Scope, *input.ParentID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewInvalidInput("parent location not found").
					WithDetail("parentLocationId", *input.ParentID)
			}
			return nil, err
		}
		if !parent.Scope.Equal(input.Scope) || parent.WarehouseID != input.WarehouseID {
			return nil, apperror.NewInvalidInput("parent location belongs to a different scope").
				WithDetail("parentLocationId", *input.ParentID)
		}
		loc.Level = parent.Level + 1
		loc.Path = ChildPath(parent.Path, loc.Code)
	} else {
		code := NormalizeCode(input.WarehouseCode)
		if code == "" {
			return nil, apperror.NewInvalidInput("warehouse code is required for root locations").
				WithDetail("field", "warehouseCode")
		}
		loc.Level = 1
		loc.Path = code + "/" + loc.Code
	}

	if err := loc.Validate(ctx); err != nil {
		return nil, err
	}

	if dup, err := s.repo.GetByCode(ctx, input.Scope, input.WarehouseID, loc.Code); err != nil {
		return nil, err
	} else if dup != nil {
		return nil, apperror.NewDuplicate("location", "code", loc.Code)
	}

	if err := s.repo.Create(ctx, loc); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, apperror.NewDuplicate("location", "code", loc.Code)
		}
		return nil, fmt.Errorf("create location: %w", err)
	}

	logger.Info(ctx, "location created",
		"location_id", loc.ID,
		"warehouse_id", loc.WarehouseID,
		"path", loc.Path,
	)
	return loc, nil
}

// UpdatePatch carries the mutable fields of a location.
type UpdatePatch struct {
	Name   *string
	Code   *string
	Usage  *Usage
	Active *bool
}

// Update applies the patch. A code change recomputes the location's own
// path and rewrites the path of every descendant, all computed from one
// consistent snapshot of the affected subtree.
func (s *Service) Update(ctx context.Context, sc scope.Scope, locationID id.ID, patch UpdatePatch) (*Location, error) {
	loc, err := s.repo.GetByID(ctx, sc, locationID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperror.NewValidation("name is required").WithDetail("field", "name")
		}
		loc.Name = name
	}
	if patch.Usage != nil {
		if !isValidUsage(*patch.Usage) {
			return nil, apperror.NewValidation("invalid location usage").WithDetail("value", string(*patch.Usage))
		}
		loc.Usage = *patch.Usage
	}
	if patch.Active != nil {
		loc.Active = *patch.Active
	}

	var pathUpdates []PathUpdate
	if patch.Code != nil {
		newCode := NormalizeCode(*patch.Code)
		if newCode != loc.Code {
			if strings.Contains(newCode, "/") || newCode == "" {
				return nil, apperror.NewValidation("invalid location code").WithDetail("value", newCode)
			}
			if dup, err := s.repo.GetByCode(ctx, sc, loc.WarehouseID, newCode); err != nil {
				return nil, err
			} else if dup != nil && dup.ID != loc.ID {
				return nil, apperror.NewDuplicate("location", "code", newCode)
			}

			oldPath := loc.Path
			newPath := newCode
			if parent := ParentPath(oldPath); parent != "" {
				newPath = parent + "/" + newCode
			}

			// One snapshot of the subtree; rewrites derived from it only.
			descendants, err := s.repo.ListDescendants(ctx, sc, loc.WarehouseID, oldPath+"/")
			if err != nil {
				return nil, fmt.Errorf("list descendants: %w", err)
			}
			for _, d := range descendants {
				pathUpdates = append(pathUpdates, PathUpdate{
					ID:   d.ID,
					Path: RewritePath(d.Path, oldPath, newPath),
				})
			}

			loc.Code = newCode
			loc.Path = newPath
		}
	}

	loc.UpdatedAt = time.Now().UTC()

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, loc); err != nil {
			return fmt.Errorf("update location: %w", err)
		}
		if len(pathUpdates) > 0 {
			if err := s.repo.UpdatePaths(ctx, sc, pathUpdates); err != nil {
				return fmt.Errorf("rewrite descendant paths: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(pathUpdates) > 0 {
		logger.Info(ctx, "location renamed, subtree paths rewritten",
			"location_id", loc.ID,
			"descendants", len(pathUpdates),
		)
	}
	return loc, nil
}

// Remove soft-deletes a location. Locations that still hold stock figures
// (on-hand or reserved) are refused.
func (s *Service) Remove(ctx context.Context, sc scope.Scope, locationID id.ID) error {
	loc, err := s.repo.GetByID(ctx, sc, locationID)
	if err != nil {
		return err
	}
	if !loc.Active {
		return nil
	}

	if s.stock != nil {
		hasStock, err := s.stock.HasStock(ctx, sc, locationID)
		if err != nil {
			return fmt.Errorf("check location stock: %w", err)
		}
		if hasStock {
			return apperror.NewConflict("location still holds stock").
				WithDetail("location_id", locationID)
		}
	}

	loc.Active = false
	loc.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, loc); err != nil {
		return fmt.Errorf("deactivate location: %w", err)
	}

	logger.Info(ctx, "location removed", "location_id", locationID)
	return nil
}

// GetByID returns a single location.
func (s *Service) GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*Location, error) {
	return s.repo.GetByID(ctx, sc, locationID)
}

// GetTree builds the parent/child tree of active locations in one pass
// over the flat list.
func (s *Service) GetTree(ctx context.Context, sc scope.Scope, warehouseID id.ID) ([]*TreeNode, error) {
	flat, err := s.repo.ListByWarehouse(ctx, sc, warehouseID, true)
	if err != nil {
		return nil, err
	}

	nodes := make(map[id.ID]*TreeNode, len(flat))
	for _, loc := range flat {
		nodes[loc.ID] = &TreeNode{Location: loc}
	}

	var roots []*TreeNode
	for _, loc := range flat {
		node := nodes[loc.ID]
		if loc.ParentID != nil {
			if parent, ok := nodes[*loc.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots, nil
}

// Ref identifies a location directly or indirectly.
type Ref struct {
	ID    *id.ID
	Code  string
	Usage Usage
}

// IsZero reports whether the ref carries no hint at all.
func (r Ref) IsZero() bool {
	return r.ID == nil && r.Code == "" && r.Usage == ""
}

// ResolveDefaults are tried, in order, when the ref itself does not resolve.
type ResolveDefaults struct {
	Usages []Usage
	Codes  []string
}

// Resolve finds a location from a coarse hint. Resolution order:
// explicit id, explicit code, explicit usage, default usages, default
// codes. Returns invalid-input when nothing matches.
func (s *Service) Resolve(ctx context.Context, sc scope.Scope, warehouseID id.ID, ref Ref, defaults ResolveDefaults) (*Location, error) {
	if ref.ID != nil {
		loc, err := s.repo.GetByID(ctx, sc, *ref.ID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewInvalidInput("location not found").WithDetail("locationId", *ref.ID)
			}
			return nil, err
		}
		if loc.WarehouseID != warehouseID {
			return nil, apperror.NewInvalidInput("location belongs to a different warehouse").
				WithDetail("locationId", *ref.ID)
		}
		return loc, nil
	}

	if ref.Code != "" {
		loc, err := s.repo.GetByCode(ctx, sc, warehouseID, NormalizeCode(ref.Code))
		if err != nil {
			return nil, err
		}
		if loc != nil {
			return loc, nil
		}
	}

	if ref.Usage != "" {
		loc, err := s.repo.FindFirstByUsage(ctx, sc, warehouseID, ref.Usage)
		if err != nil {
			return nil, err
		}
		if loc != nil {
			return loc, nil
		}
	}

	for _, usage := range defaults.Usages {
		loc, err := s.repo.FindFirstByUsage(ctx, sc, warehouseID, usage)
		if err != nil {
			return nil, err
		}
		if loc != nil {
			return loc, nil
		}
	}

	for _, code := range defaults.Codes {
		loc, err := s.repo.GetByCode(ctx, sc, warehouseID, NormalizeCode(code))
		if err != nil {
			return nil, err
		}
		if loc != nil {
			return loc, nil
		}
	}

	return nil, apperror.NewInvalidInput("could not resolve location").
		WithDetail("warehouse_id", warehouseID).
		WithDetail("code", ref.Code).
		WithDetail("usage", string(ref.Usage))
}
