package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shipnest/apiserver/internal/services"
	"github.com/shipnest/apiserver/internal/store"
	"github.com/shipnest/apiserver/internal/validate"
	"github.com/shipnest/apiserver/types"
	"go.uber.org/zap"
)

const (
	maxImageBytes      = 5 << 20
	maxMultipartMemory = 8 << 20
	formFieldImage     = "image"
)

var userMessages = map[string]string{
	"username": "Username is Required",
	"email":    "Email is Required",
	"password": "Password is Required",
	"imageUrl": "Image Url is Required",
}

// TokenIssuer signs identity tokens.
type TokenIssuer interface {
	Issue(user types.User) (string, error)
}

// UserHandler provides HTTP handlers for accounts.
type UserHandler struct {
	userService *services.UserService
	tokens      TokenIssuer
	logger      *zap.Logger
}

func NewUserHandler(userService *services.UserService, tokens TokenIssuer, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		tokens:      tokens,
		logger:      logger,
	}
}

// UserRouter registers account routes on the given router. limit guards the
// public credential endpoints and may be nil.
func UserRouter(
	r chi.Router,
	handler *UserHandler,
	authMiddleware func(http.Handler) http.Handler,
	limit func(http.Handler) http.Handler,
) {
	public := r.With()
	if limit != nil {
		public = r.With(limit)
	}
	public.With(validate.Body[RegisterRequest](SendValidationErrors, userMessages)).Post("/register", handler.Register)
	public.With(validate.Body[LoginRequest](SendValidationErrors, userMessages)).Post("/login", handler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/me", handler.Me)
		r.With(validate.Body[ProfilePictureRequest](SendValidationErrors, userMessages)).Post("/profile", handler.UpdateProfilePicture)
		r.Post("/profile/upload", handler.UploadProfilePicture)
		r.With(validate.Body[ChangePasswordRequest](SendValidationErrors, userMessages)).Post("/change-password", handler.ChangePassword)
	})
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,notblank"`
	Email    string `json:"email" validate:"required,notblank"`
	Password string `json:"password" validate:"required,notblank"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,notblank"`
	Password string `json:"password" validate:"required,notblank"`
}

type ProfilePictureRequest struct {
	ImageURL string `json:"imageUrl" validate:"required,notblank"`
}

type ChangePasswordRequest struct {
	Password string `json:"password" validate:"required,notblank"`
}

type LoginResponse struct {
	User  types.PublicUser `json:"user"`
	Token string           `json:"token"`
}

// Register creates a new account.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		sendErrors(w, http.StatusBadRequest, err.Error(), "Invalid request body")
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			sendErrors(w, http.StatusConflict, nil, "User is Already Exists")
			return
		}
		h.internalError(w, "register user", err)
		return
	}

	sendData(w, http.StatusOK, user.Public(), "Registration is Success!")
}

// Login verifies credentials and returns a signed token.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		sendErrors(w, http.StatusBadRequest, err.Error(), "Invalid request body")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownEmail):
			sendErrors(w, http.StatusUnauthorized, nil, "Invalid Credentials Email")
		case errors.Is(err, services.ErrWrongPassword):
			sendErrors(w, http.StatusUnauthorized, nil, "Invalid Credentials Password")
		default:
			h.internalError(w, "authenticate user", err)
		}
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Warn("issue token", zap.String("user_id", user.ID), zap.Error(err))
		sendErrors(w, http.StatusBadRequest, nil, "Token creation failed")
		return
	}

	sendData(w, http.StatusOK, LoginResponse{User: user.Public(), Token: token}, "Login is Success")
}

// Me returns the current authenticated user, read fresh from the store.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetByID(r.Context(), current.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendErrors(w, http.StatusNotFound, nil, "User is not found")
			return
		}
		h.internalError(w, "load user", err)
		return
	}

	sendData(w, http.StatusOK, user.Public(), "")
}

// UpdateProfilePicture sets the profile picture to the given URL.
func (h *UserHandler) UpdateProfilePicture(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req ProfilePictureRequest
	if err := decodeJSON(r, &req); err != nil {
		sendErrors(w, http.StatusBadRequest, err.Error(), "Invalid request body")
		return
	}

	updated, err := h.userService.UpdateImage(r.Context(), current, req.ImageURL)
	if err != nil {
		h.userUpdateError(w, "update profile picture", err)
		return
	}

	sendData(w, http.StatusOK, updated.Public(), "Profile Picture Updated")
}

// UploadProfilePicture stores an uploaded image and makes it the profile
// picture.
func (h *UserHandler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	data, err := readImageUpload(w, r)
	if err != nil {
		sendErrors(w, http.StatusBadRequest, err.Error(), "Invalid image upload")
		return
	}

	updated, err := h.userService.UploadImage(r.Context(), current, data)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrImagesDisabled):
			sendErrors(w, http.StatusNotImplemented, nil, "Image uploads are not enabled")
		case errors.Is(err, services.ErrUnsupportedImage):
			sendErrors(w, http.StatusUnsupportedMediaType, nil, "Unsupported image type")
		default:
			h.userUpdateError(w, "upload profile picture", err)
		}
		return
	}

	sendData(w, http.StatusOK, updated.Public(), "Profile Picture Updated")
}

// ChangePassword replaces the caller's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		sendErrors(w, http.StatusBadRequest, err.Error(), "Invalid request body")
		return
	}

	updated, err := h.userService.ChangePassword(r.Context(), current, req.Password)
	if err != nil {
		h.userUpdateError(w, "change password", err)
		return
	}

	sendData(w, http.StatusOK, updated.Public(), "Password is Updated")
}

func (h *UserHandler) currentUser(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	user, err := userFromContext(r.Context())
	if err != nil {
		sendErrors(w, http.StatusUnauthorized, nil, "Invalid Token")
		return types.User{}, false
	}
	return user, true
}

func (h *UserHandler) userUpdateError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		sendErrors(w, http.StatusNotFound, nil, "User is not found")
		return
	}
	h.internalError(w, op, err)
}

func (h *UserHandler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	sendErrors(w, http.StatusInternalServerError, err.Error(), "Internal Server Error")
}

func readImageUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, errors.New("invalid multipart form")
	}

	files := r.MultipartForm.File[formFieldImage]
	if len(files) == 0 {
		return nil, errors.New("image file is required")
	}
	if len(files) > 1 {
		return nil, errors.New("only one image file is allowed")
	}

	file, err := files[0].Open()
	if err != nil {
		return nil, errors.New("failed to read image file")
	}
	defer file.Close()

	return readFileLimited(file, maxImageBytes)
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	if len(data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}
	return data, nil
}
