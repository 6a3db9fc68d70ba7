package tool

import (
	"github.com/quest-labs/relo/pkg/repository"
	"github.com/quest-labs/relo/pkg/service/memory"
)

// Client contains shared resources that tools can use
type Client struct {
	Repo   repository.Repository
	Memory memory.Service
}
