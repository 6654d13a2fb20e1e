package restaurants

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("restaurant not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const defaultCurrencySymbol = "₹"

// Service implements the admin tooling: onboarding, menu, credentials and webhook settings.
type Service struct {
	storage Storage
	tokens  TokenIssuer
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(storage Storage, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		tokens:  tokens,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateRestaurant(ctx context.Context, req CreateRequest) (*Restaurant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "name is required")
	}

	now := s.now()
	restaurant, err := s.storage.CreateRestaurant(ctx, Restaurant{
		ID:             uuid.NewString(),
		Name:           name,
		Address:        strings.TrimSpace(req.Address),
		Phone:          strings.TrimSpace(req.Phone),
		CurrencySymbol: lo.Ternary(req.CurrencySymbol == "", defaultCurrencySymbol, req.CurrencySymbol),
		GatewayEnabled: req.GatewayEnabled,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create restaurant")
	}

	s.logger.Info("Restaurant onboarded", "restaurant_id", restaurant.ID, "name", restaurant.Name)
	return restaurant, nil
}

func (s *Service) GetRestaurant(ctx context.Context, id string) (*Restaurant, error) {
	restaurant, err := s.storage.GetRestaurant(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get restaurant")
	}
	if restaurant == nil {
		return nil, ErrNotFound
	}
	return restaurant, nil
}

func (s *Service) ListRestaurants(ctx context.Context, criteria ListCriteria) ([]*Restaurant, error) {
	list, err := s.storage.ListRestaurants(ctx, criteria)
	if err != nil {
		return nil, errors.Wrap(err, "list restaurants")
	}
	return list, nil
}

func (s *Service) UpdateRestaurant(ctx context.Context, id string, params UpdateParams) (*Restaurant, error) {
	if params.Name != nil && strings.TrimSpace(*params.Name) == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "name must not be empty")
	}
	if _, err := s.GetRestaurant(ctx, id); err != nil {
		return nil, err
	}

	restaurant, err := s.storage.UpdateRestaurant(ctx, id, params)
	if err != nil {
		return nil, errors.Wrap(err, "update restaurant")
	}
	return restaurant, nil
}

func (s *Service) DeleteRestaurant(ctx context.Context, id string) error {
	if _, err := s.GetRestaurant(ctx, id); err != nil {
		return err
	}
	if err := s.storage.DeleteRestaurant(ctx, id); err != nil {
		return errors.Wrap(err, "delete restaurant")
	}
	s.logger.Info("Restaurant deleted", "restaurant_id", id)
	return nil
}

// ConfigureWebhook sets the outbound order-event webhook. An empty URL disables it.
// A secret is generated when none is supplied.
func (s *Service) ConfigureWebhook(ctx context.Context, id string, cfg WebhookConfig) (*Restaurant, *WebhookConfig, error) {
	if _, err := s.GetRestaurant(ctx, id); err != nil {
		return nil, nil, err
	}

	if cfg.URL == "" {
		restaurant, err := s.storage.UpdateRestaurant(ctx, id, UpdateParams{WebhookURL: lo.ToPtr(""), WebhookSecret: lo.ToPtr("")})
		if err != nil {
			return nil, nil, errors.Wrap(err, "disable webhook")
		}
		s.logger.Info("Webhook disabled", "restaurant_id", id)
		return restaurant, &WebhookConfig{}, nil
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, nil, errors.Wrap(ErrInvalidRequest, "webhook url must be an absolute http(s) url")
	}

	if cfg.Secret == "" {
		secret, err := randomHex(24)
		if err != nil {
			return nil, nil, errors.Wrap(err, "generate webhook secret")
		}
		cfg.Secret = secret
	}

	restaurant, err := s.storage.UpdateRestaurant(ctx, id, UpdateParams{WebhookURL: &cfg.URL, WebhookSecret: &cfg.Secret})
	if err != nil {
		return nil, nil, errors.Wrap(err, "configure webhook")
	}

	s.logger.Info("Webhook configured", "restaurant_id", id, "url", cfg.URL)
	return restaurant, &cfg, nil
}

func (s *Service) UpsertDish(ctx context.Context, restaurantID string, req DishRequest) (*Dish, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "dish name is required")
	}
	if req.Price <= 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "dish price must be positive")
	}
	if _, err := s.GetRestaurant(ctx, restaurantID); err != nil {
		return nil, err
	}

	now := s.now()
	dish, err := s.storage.UpsertDish(ctx, Dish{
		ID:           lo.FromPtrOr(req.ID, uuid.NewString()),
		RestaurantID: restaurantID,
		Name:         strings.TrimSpace(req.Name),
		Price:        req.Price,
		IsAvailable:  lo.FromPtrOr(req.IsAvailable, true),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "upsert dish")
	}
	return dish, nil
}

// Menu lists the dishes guests can order.
func (s *Service) Menu(ctx context.Context, restaurantID string) (*Restaurant, []*Dish, error) {
	restaurant, err := s.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, nil, err
	}
	if !restaurant.IsActive {
		return nil, nil, ErrNotFound
	}
	dishes, err := s.storage.ListDishes(ctx, restaurantID, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list dishes")
	}
	return restaurant, dishes, nil
}

// IssueCredential creates a staff login for the restaurant. The password is
// returned once and only its bcrypt hash is stored.
func (s *Service) IssueCredential(ctx context.Context, restaurantID string) (*IssuedCredential, error) {
	restaurant, err := s.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	suffix, err := randomHex(3)
	if err != nil {
		return nil, errors.Wrap(err, "generate username")
	}
	password, err := randomPassword()
	if err != nil {
		return nil, errors.Wrap(err, "generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	username := slug(restaurant.Name) + "-" + suffix
	if _, err := s.storage.CreateCredential(ctx, Credential{
		RestaurantID: restaurantID,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}); err != nil {
		return nil, errors.Wrap(err, "store credential")
	}

	s.logger.Info("Staff credential issued", "restaurant_id", restaurantID, "username", username)
	return &IssuedCredential{RestaurantID: restaurantID, Username: username, Password: password}, nil
}

// Login verifies staff credentials and returns a signed token and the restaurant id.
func (s *Service) Login(ctx context.Context, username, password string) (string, string, error) {
	cred, err := s.storage.GetCredentialByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", "", errors.Wrap(err, "get credential")
	}
	if cred == nil {
		return "", "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", "", ErrInvalidCredentials
	}

	restaurant, err := s.GetRestaurant(ctx, cred.RestaurantID)
	if err != nil {
		return "", "", err
	}
	if !restaurant.IsActive {
		return "", "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(cred.RestaurantID, cred.Username)
	if err != nil {
		return "", "", errors.Wrap(err, "issue token")
	}
	return token, cred.RestaurantID, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteRune('-')
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "staff"
	}
	if len(s) > 24 {
		s = strings.Trim(s[:24], "-")
	}
	return s
}
