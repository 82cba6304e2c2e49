package repo

import (
	"github.com/aatrooox/localsync/internal/localsync/db"
	"github.com/aatrooox/localsync/internal/localsync/schema"
)

// Users is the repository for schema.User.
type Users = Repository[schema.User, *schema.User]

// Todos is the repository for schema.Todo.
type Todos = Repository[schema.Todo, *schema.Todo]

// NewUsers creates the users repository.
func NewUsers(store db.Store, opts *Options) *Users {
	return New[schema.User, *schema.User](store, UserTable, opts)
}

// NewTodos creates the todos repository.
func NewTodos(store db.Store, opts *Options) *Todos {
	return New[schema.Todo, *schema.Todo](store, TodoTable, opts)
}
