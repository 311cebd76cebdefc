package models

// AppRole is the role carried by an API token
type AppRole string

const (
	RoleAdmin  AppRole = "admin"
	RoleEditor AppRole = "editor"
	RoleViewer AppRole = "viewer"
)
