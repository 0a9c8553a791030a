package rpc

import (
	"context"
	"encoding/json"

	"identity/internal/usecase"

	"github.com/pkg/errors"
)

type registerUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// UnmarshalJSON also accepts the token sent as a bare JSON string.
func (r *verifyTokenRequest) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		r.Token = token

		return nil
	}

	type plain verifyTokenRequest

	return json.Unmarshal(data, (*plain)(r))
}

// AuthHandler adapts the auth message patterns to the AuthUsecase.
type AuthHandler struct {
	uc        usecase.AuthUsecase
	validator *Validator
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(uc usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{
		uc:        uc,
		validator: NewValidator(),
	}
}

// RegisterRoutes binds the auth patterns on router.
func (h *AuthHandler) RegisterRoutes(router *Router) {
	router.Handle(PatternRegisterUser, h.RegisterUser)
	router.Handle(PatternLoginUser, h.LoginUser)
	router.Handle(PatternVerifyUser, h.VerifyUser)
}

// RegisterUser handles auth.register.user.
func (h *AuthHandler) RegisterUser(ctx context.Context, data json.RawMessage) (any, error) {
	var req registerUserRequest
	if err := h.validator.Bind(data, &req); err != nil {
		return nil, err
	}

	output, err := h.uc.RegisterUser(ctx, &usecase.RegisterUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return output, nil
}

// LoginUser handles auth.login.user.
func (h *AuthHandler) LoginUser(ctx context.Context, data json.RawMessage) (any, error) {
	var req loginUserRequest
	if err := h.validator.Bind(data, &req); err != nil {
		return nil, err
	}

	output, err := h.uc.LoginUser(ctx, &usecase.LoginUserInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return output, nil
}

// VerifyUser handles auth.verify.user.
func (h *AuthHandler) VerifyUser(ctx context.Context, data json.RawMessage) (any, error) {
	var req verifyTokenRequest
	if err := h.validator.Bind(data, &req); err != nil {
		return nil, err
	}

	output, err := h.uc.VerifyToken(ctx, req.Token)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return output, nil
}
