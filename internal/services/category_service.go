package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/store"
)

// CategoryService manages the user category list on top of the built-ins.
type CategoryService struct {
	categories   store.CategoryStore
	transactions store.TransactionStore
	logger       *log.Logger
}

func NewCategoryService(categories store.CategoryStore, transactions store.TransactionStore, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CategoryService{
		categories:   categories,
		transactions: transactions,
		logger:       logger.WithComponent(log.ComponentCategories),
	}
}

// List returns the built-ins followed by the stored categories.
func (s *CategoryService) List(ctx context.Context) ([]string, error) {
	stored, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := append([]string(nil), core.BuiltinCategories...)
	for _, c := range stored {
		if !core.IsBuiltinCategory(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *CategoryService) Add(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", core.NewFieldError("name", "category name is required", nil)
	}
	if utf8.RuneCountInString(name) > core.MaxCategoryLength {
		return "", core.NewFieldError("name", fmt.Sprintf("category name too long (max %d characters)", core.MaxCategoryLength), nil)
	}
	if core.IsBuiltinCategory(name) {
		return "", fmt.Errorf("category %q: %w", name, core.ErrConflict)
	}
	if err := s.categories.AddCategory(ctx, name); err != nil {
		return "", fmt.Errorf("add category %q: %w", name, err)
	}
	s.logger.InfoContext(ctx, "Category added",
		log.FieldOperation, log.OpCreate,
		log.FieldCategory, name)
	return name, nil
}

// Delete refuses built-ins and categories still referenced by a transaction.
func (s *CategoryService) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.NewFieldError("name", "category name is required", nil)
	}
	if core.IsBuiltinCategory(name) {
		return core.NewFieldError("name", fmt.Sprintf("%q is a built-in category and cannot be deleted", name), nil)
	}

	txs, err := s.transactions.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	for _, tx := range txs {
		if strings.EqualFold(tx.Category, name) {
			return fmt.Errorf("category %q is used by transaction %s: %w", name, tx.ID, core.ErrConflict)
		}
	}

	if err := s.categories.DeleteCategory(ctx, name); err != nil {
		return fmt.Errorf("delete category %q: %w", name, err)
	}
	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldCategory, name)
	return nil
}
