package database

import (
	"fmt"

	"messenger-sync/logger"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && regexMatch(r.act, p.act)
`

var Enforcer *casbin.Enforcer

func CasbinConnect() {
	enforcer, err := NewEnforcer(DB)
	if err != nil {
		panic(err)
	}
	Enforcer = enforcer
	logger.L().Info("casbin policy loaded")
}

// NewEnforcer stores policies in db and grants the admin role every
// /v1/admin route.
func NewEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("initialize casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if hasPolicy, _ := enforcer.HasPolicy("admin", "/v1/admin*", "(GET)|(POST)|(PUT)|(DELETE)"); !hasPolicy {
		if _, err := enforcer.AddPolicy("admin", "/v1/admin*", "(GET)|(POST)|(PUT)|(DELETE)"); err != nil {
			return nil, fmt.Errorf("add default policy: %w", err)
		}
	}

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policy: %w", err)
	}
	return enforcer, nil
}
