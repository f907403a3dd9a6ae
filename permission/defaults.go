package permission

// Built-in permissions.
const (
	UserView   = "USER_VIEW"
	UserCreate = "USER_CREATE"
	UserUpdate = "USER_UPDATE"
	UserDelete = "USER_DELETE"
	PostView   = "POST_VIEW"
	PostCreate = "POST_CREATE"
	PostUpdate = "POST_UPDATE"
	PostDelete = "POST_DELETE"
)

// Built-in roles.
const (
	RoleUser    = "USER"
	RoleCreator = "CREATOR"
	RoleAdmin   = "ADMIN"
)

// AllPermissions lists every built-in permission in registration order.
var AllPermissions = []string{
	UserView, UserCreate, UserUpdate, UserDelete,
	PostView, PostCreate, PostUpdate, PostDelete,
}

// DefaultRoles is the built-in role table.
var DefaultRoles = map[string][]string{
	RoleUser:    {UserView, PostView},
	RoleCreator: {PostCreate, UserUpdate, PostUpdate},
	RoleAdmin:   AllPermissions,
}

// NewDefault returns a frozen registry and role manager seeded with the
// built-in permissions and roles.
func NewDefault() (*Registry, *RoleManager, error) {
	return New(AllPermissions, DefaultRoles)
}

// New builds a frozen registry and role manager from a permission list and a
// role table.
func New(permissions []string, roles map[string][]string) (*Registry, *RoleManager, error) {
	reg := NewRegistry()
	for _, p := range permissions {
		if _, err := reg.Register(p); err != nil {
			return nil, nil, err
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	for role, perms := range roles {
		if err := rm.RegisterRole(role, perms); err != nil {
			return nil, nil, err
		}
	}
	rm.Freeze()
	return reg, rm, nil
}
