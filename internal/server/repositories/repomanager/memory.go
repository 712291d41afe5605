package repomanager

import (
	"context"

	"github.com/dmitrijs2005/erpkeeper/internal/server/repositories/accounts"
)

// MemoryRepositoryManager keeps everything in process memory.
type MemoryRepositoryManager struct {
	accounts *accounts.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{accounts: accounts.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Accounts() accounts.Repository { return m.accounts }
func (m *MemoryRepositoryManager) Ping(context.Context) error    { return nil }
func (m *MemoryRepositoryManager) Close(context.Context) error   { return nil }
