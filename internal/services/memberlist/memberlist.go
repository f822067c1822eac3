// Package memberlist is the read-only projection behind the admin pages.
package memberlist

import (
	"context"
	"fmt"

	"github.com/quipper/poc/membercard/pkg/repositories/members"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
	// MaxPage keeps (page-1)*perPage far from int overflow.
	MaxPage = 1_000_000
)

type Lister interface {
	ListAll(ctx context.Context) ([]*members.Member, error)
	ListPage(ctx context.Context, offset, limit int) ([]*members.Member, int, error)
}

// Page is one slice of the member list. When Paged is false Members holds
// every member and the paging fields are zero.
type Page struct {
	Members []*members.Member `json:"members"`
	Total   int               `json:"total"`
	Paged   bool              `json:"paged"`
	Page    int               `json:"page,omitempty"`
	PerPage int               `json:"per_page,omitempty"`
	HasNext bool              `json:"has_next,omitempty"`
}

// HasPrev is used by the list template.
func (p *Page) HasPrev() bool { return p.Paged && p.Page > 1 }

type Service struct {
	repo Lister
}

func NewService(repo Lister) *Service {
	return &Service{repo: repo}
}

// List returns all members when page is 0, otherwise the 1-based page.
func (s *Service) List(ctx context.Context, page, perPage int) (*Page, error) {
	if page <= 0 {
		all, err := s.repo.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		if all == nil {
			all = []*members.Member{}
		}
		return &Page{Members: all, Total: len(all)}, nil
	}

	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	items, total, err := s.repo.ListPage(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, fmt.Errorf("list members page %d: %w", page, err)
	}
	if items == nil {
		items = []*members.Member{}
	}
	return &Page{
		Members: items,
		Total:   total,
		Paged:   true,
		Page:    page,
		PerPage: perPage,
		HasNext: page*perPage < total,
	}, nil
}
