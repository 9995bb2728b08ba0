package auth

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// IdentityService is the identity surface used by the HTTP controller
type IdentityService interface {
	Create(ctx context.Context, msg CreateUserMessage) (*User, error)
	CreateEmployee(ctx context.Context, msg CreateEmployeeMessage) (*User, error)
	PartialUpdate(ctx context.Context, username string, msg UpdateUserMessage) (*User, error)
	Delete(ctx context.Context, username string) error
	Authenticate(ctx context.Context, username, password string) (*Identity, error)
	GetByUsername(ctx context.Context, username string) (*Identity, error)
	CreateRole(ctx context.Context, msg CreateRoleMessage) (*Role, error)
}

// TokenIssuer signs tokens for authenticated identities
type TokenIssuer interface {
	Issue(identity *Identity) (string, error)
}

var (
	_ IdentityService = (*IdentityManager)(nil)
	_ TokenIssuer     = (*TokenService)(nil)
)

type HTTPControllerRoutes struct {
	User     string
	Role     string
	Token    string
	Employee string
}

type HTTPController struct {
	Logger  Logger
	Service IdentityService
	Tokens  TokenIssuer
	Routes  *HTTPControllerRoutes
	// Guard protects the user admin, role and employee routes when set
	Guard fiber.Handler
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithIdentityService(service IdentityService) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Service = service
		return c
	}
}

func WithTokenIssuer(tokens TokenIssuer) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Tokens = tokens
		return c
	}
}

func WithGuard(guard fiber.Handler) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Guard = guard
		return c
	}
}

func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger: defLogger{},
		Routes: &HTTPControllerRoutes{
			User:     "/user",
			Role:     "/role",
			Token:    "/token",
			Employee: "/employee",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing IdentityService in http controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenIssuer in http controller...")
	}

	return c
}

// RegisterRoutes mounts the identity endpoints on app
func RegisterRoutes(app fiber.Router, opts ...HTTPControllerOption) *HTTPController {
	controller := NewHTTPController(opts...)

	guarded := func(h fiber.Handler) []fiber.Handler {
		if controller.Guard == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{controller.Guard, h}
	}

	app.Post(controller.Routes.Token, controller.TokenPost)
	app.Post(controller.Routes.User, controller.UserPost)
	app.Get(controller.Routes.User+"/:username", guarded(controller.UserGet)...)
	app.Put(controller.Routes.User+"/:username", guarded(controller.UserPut)...)
	app.Delete(controller.Routes.User+"/:username", guarded(controller.UserDelete)...)
	app.Post(controller.Routes.Role, guarded(controller.RolePost)...)
	app.Post(controller.Routes.Employee, guarded(controller.EmployeePost)...)

	return controller
}

// TokenRequest payload
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse payload
type TokenResponse struct {
	Token string `json:"token"`
}

func (a *HTTPController) TokenPost(c *fiber.Ctx) error {
	payload := new(TokenRequest)
	if err := bindJSON(c, payload); err != nil {
		return err
	}

	identity, err := a.Service.Authenticate(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return err
	}

	token, err := a.Tokens.Issue(identity)
	if err != nil {
		a.Logger.Error("token issue error: %s", err)
		return err
	}

	return c.JSON(TokenResponse{Token: token})
}

func (a *HTTPController) UserPost(c *fiber.Ctx) error {
	payload := new(CreateUserMessage)
	if err := bindJSON(c, payload); err != nil {
		return err
	}

	user, err := a.Service.Create(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return created(c, user.ID.String())
}

func (a *HTTPController) UserGet(c *fiber.Ctx) error {
	identity, err := a.Service.GetByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}

	return c.JSON(identity)
}

func (a *HTTPController) UserPut(c *fiber.Ctx) error {
	username := c.Params("username")

	payload := new(UpdateUserMessage)
	if err := bindJSON(c, payload); err != nil {
		return err
	}

	if _, err := a.Service.PartialUpdate(c.UserContext(), username, *payload); err != nil {
		return err
	}

	a.Logger.Info("user %s updated by %s", username, actorFromContext(c.UserContext()))

	return c.SendString(fmt.Sprintf("User %s updated successfully.", username))
}

func (a *HTTPController) UserDelete(c *fiber.Ctx) error {
	username := c.Params("username")
	if err := a.Service.Delete(c.UserContext(), username); err != nil {
		return err
	}

	a.Logger.Info("user %s deleted by %s", username, actorFromContext(c.UserContext()))

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *HTTPController) RolePost(c *fiber.Ctx) error {
	payload := new(CreateRoleMessage)
	if err := bindJSON(c, payload); err != nil {
		return err
	}

	role, err := a.Service.CreateRole(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	a.Logger.Info("role %s created by %s", role.Name, actorFromContext(c.UserContext()))

	return created(c, role.ID.String())
}

func (a *HTTPController) EmployeePost(c *fiber.Ctx) error {
	payload := new(CreateEmployeeMessage)
	if err := bindJSON(c, payload); err != nil {
		return err
	}

	user, err := a.Service.CreateEmployee(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	a.Logger.Info("employee %s created by %s", user.Username, actorFromContext(c.UserContext()))

	return created(c, user.ID.String())
}

func created(c *fiber.Ctx, id string) error {
	c.Location("/" + id)
	return c.Status(fiber.StatusCreated).SendString(id)
}

func bindJSON(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		if goerrors.Is(err, fiber.ErrUnprocessableEntity) {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "request body must be application/json").
				WithCode(fiber.StatusUnsupportedMediaType).
				WithTextCode(TextCodeValidationFailed)
		}
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "request body must be valid JSON").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed)
	}
	return nil
}

// ErrorHandler renders errors as go-errors responses. The source of
// internal errors is logged, never returned to the client.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		richErr := toRichError(err)

		if richErr.Code >= fiber.StatusInternalServerError {
			logger.Error("%s %s failed: %v", c.Method(), c.Path(), err)
		}

		res := richErr.Clone()
		res.Source = nil
		res.Location = nil
		res.StackTrace = nil

		return c.Status(res.Code).JSON(res.ToErrorResponse(false, nil))
	}
}

func toRichError(err error) *goerrors.Error {
	var fe *fiber.Error
	if goerrors.As(err, &fe) {
		return goerrors.New(fe.Message, goerrors.HTTPStatusToCategory(fe.Code)).
			WithCode(fe.Code).
			WithTextCode(goerrors.HTTPStatusToTextCode(fe.Code))
	}

	richErr := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	if richErr.Code == 0 {
		richErr.Code = statusForCategory(richErr.Category)
	}
	return richErr
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}
