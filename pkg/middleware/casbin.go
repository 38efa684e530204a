package middleware

import (
	"net/http"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/config"
	"Fly8Backend/pkg/response"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act, eft

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// Objects are echo route patterns, so ids never reach the policy.
const rbacPolicy = `
p, member, /api/conversations*, ^GET$, allow
p, member, /api/messages*, ^(GET|POST|PUT|DELETE)$, allow
p, member, /api/notifications*, ^(GET|PUT|DELETE)$, allow
p, admin, /api/admin/*, ^(GET|POST|DELETE)$, allow
g, student, member
g, admin, member
`

// NewEnforcer builds the RBAC enforcer from the built-in policy, or from CASBIN_POLICY_PATH when set.
func NewEnforcer(cfg *config.AppConfig, log *zap.Logger) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	var adapter persist.Adapter = stringadapter.NewAdapter(rbacPolicy)
	if cfg.CasbinPolicyPath != "" {
		adapter = fileadapter.NewAdapter(cfg.CasbinPolicyPath)
	}
	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}

	policies, _ := enforcer.GetPolicy()
	log.Info("Casbin enforcer created", zap.Int("policies", len(policies)), zap.String("policy_file", cfg.CasbinPolicyPath))
	return enforcer, nil
}

// CasbinMiddleware enforces RBAC on the caller's role. It must run after JWTMiddleware.
func CasbinMiddleware(enforcer *casbin.Enforcer, log *zap.Logger) echo.MiddlewareFunc {
	log = log.Named("rbac")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := auth.PrincipalFrom(c)
			if !ok {
				return response.Fail(c, http.StatusUnauthorized, "Unauthorized: missing user claims")
			}
			obj := c.Path()
			act := c.Request().Method
			allowed, err := enforcer.Enforce(string(principal.Role), obj, act)
			if err != nil {
				log.Error("casbin enforce failed", zap.Error(err))
				return response.Fail(c, http.StatusInternalServerError, "RBAC system error")
			}
			if !allowed {
				log.Debug("casbin denied",
					zap.String("role", string(principal.Role)),
					zap.String("obj", obj),
					zap.String("act", act))
				return response.Fail(c, http.StatusForbidden, "Forbidden: insufficient permissions")
			}
			return next(c)
		}
	}
}
