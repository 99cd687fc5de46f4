package services

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	model "github.com/afuentesm/NormaTrack/models"
)

// The registries are flat records with no derived logic beyond name
// uniqueness; the requirement model references them by opaque key.

func (s *TrackerService) CreateArea(area *model.Area) error {
	if area.Name == "" {
		return fmt.Errorf("area name is required")
	}
	if err := s.db.Create(area).Error; err != nil {
		return fmt.Errorf("%w: saving area: %w", model.ErrTransport, err)
	}
	return nil
}

func (s *TrackerService) ListAreas() ([]model.Area, error) {
	var areas []model.Area
	if err := s.db.Order("name").Find(&areas).Error; err != nil {
		return nil, fmt.Errorf("%w: listing areas: %w", model.ErrTransport, err)
	}
	return areas, nil
}

func (s *TrackerService) DeleteArea(id string) error {
	result := s.db.Delete(&model.Area{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: deleting area %s: %w", model.ErrTransport, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("area %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *TrackerService) CreatePlant(plant *model.Plant) error {
	if plant.Name == "" {
		return fmt.Errorf("plant name is required")
	}
	if err := s.db.Create(plant).Error; err != nil {
		return fmt.Errorf("%w: saving plant: %w", model.ErrTransport, err)
	}
	return nil
}

func (s *TrackerService) ListPlants() ([]model.Plant, error) {
	var plants []model.Plant
	if err := s.db.Order("name").Find(&plants).Error; err != nil {
		return nil, fmt.Errorf("%w: listing plants: %w", model.ErrTransport, err)
	}
	return plants, nil
}

func (s *TrackerService) DeletePlant(id string) error {
	result := s.db.Delete(&model.Plant{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: deleting plant %s: %w", model.ErrTransport, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("plant %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *TrackerService) CreateStandard(std *model.StandardDef) error {
	if std.Name == "" {
		return fmt.Errorf("standard name is required")
	}
	if err := s.db.Create(std).Error; err != nil {
		return fmt.Errorf("%w: saving standard: %w", model.ErrTransport, err)
	}
	return nil
}

func (s *TrackerService) ListStandards() ([]model.StandardDef, error) {
	var stds []model.StandardDef
	if err := s.db.Order("name").Find(&stds).Error; err != nil {
		return nil, fmt.Errorf("%w: listing standards: %w", model.ErrTransport, err)
	}
	return stds, nil
}

func (s *TrackerService) DeleteStandard(id string) error {
	result := s.db.Delete(&model.StandardDef{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: deleting standard %s: %w", model.ErrTransport, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("standard %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// CreateUser hashes the password and stores the account. New users default
// to the viewer role.
func (s *TrackerService) CreateUser(user *model.User, password string) error {
	if user.Email == "" {
		return fmt.Errorf("user email is required")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	if user.Role == "" {
		user.Role = model.RoleViewer
	}
	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("%w: saving user: %w", model.ErrTransport, err)
	}
	if err := s.broadcastUsers(); err != nil {
		log.Printf("[CreateUser] broadcast failed: %v", err)
	}
	return nil
}

func (s *TrackerService) ListUsers() ([]model.User, error) {
	var users []model.User
	if err := s.db.Order("email").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("%w: listing users: %w", model.ErrTransport, err)
	}
	return users, nil
}

func (s *TrackerService) DeleteUser(id string) error {
	result := s.db.Delete(&model.User{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: deleting user %s: %w", model.ErrTransport, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	if err := s.broadcastUsers(); err != nil {
		log.Printf("[DeleteUser] broadcast failed: %v", err)
	}
	return nil
}

// Authenticate verifies the email/password pair and returns the account.
func (s *TrackerService) Authenticate(email, password string) (*model.User, error) {
	var user model.User
	if err := s.db.First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("%w: fetching user: %w", model.ErrTransport, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return &user, nil
}

// SeedDefaultAdmin creates the bootstrap admin account when no admin exists
// yet. Credentials come from the environment with development defaults.
func (s *TrackerService) SeedDefaultAdmin(email, password string) error {
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return fmt.Errorf("%w: checking admin user: %w", model.ErrTransport, err)
	}
	if count > 0 {
		return nil
	}
	admin := &model.User{
		Name:  "Administrator",
		Email: email,
		Role:  model.RoleAdmin,
	}
	if err := s.CreateUser(admin, password); err != nil {
		return err
	}
	log.Printf("Created default admin user: %s", email)
	return nil
}
