package service_test

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/internal/service"
)

func (s *IntegrationTestSuite) register(email string) *domain.AuthResult {
	result, err := s.AuthService.Register(s.Ctx, &domain.RegisterInput{
		Email:     email,
		Password:  "Sup3rSecret!",
		FirstName: "Ivo",
		LastName:  "Horvat",
	})
	s.Require().NoError(err)

	return result
}

func (s *IntegrationTestSuite) TestRegister_Success() {
	result := s.register("Ivo@Example.com")

	s.NotZero(result.User.ID)
	s.Equal("ivo@example.com", result.User.Email)
	s.Equal(domain.RoleCustomer, result.User.Role)
	s.NotEmpty(result.AccessToken)
	s.Nil(result.CartID)

	claims, err := s.AuthService.ValidateToken(s.Ctx, result.AccessToken)
	s.Require().NoError(err)
	s.Equal(result.User.ID, claims.UserID)

	s.Equal(1, s.outboxCount(domain.EventUserRegistered, strconv.FormatInt(result.User.ID, 10)))
}

func (s *IntegrationTestSuite) TestRegister_DuplicateEmail() {
	s.register("dup@example.com")

	_, err := s.AuthService.Register(s.Ctx, &domain.RegisterInput{
		Email:    "DUP@example.com",
		Password: "An0therSecret",
	})
	s.Require().ErrorIs(err, repository.ErrUserAlreadyExists)
}

func (s *IntegrationTestSuite) TestRegister_WeakPassword() {
	_, err := s.AuthService.Register(s.Ctx, &domain.RegisterInput{
		Email:    "weak@example.com",
		Password: "onlyletters",
	})

	var validationErr *service.ValidationError
	s.Require().True(errors.As(err, &validationErr))
	s.Contains(validationErr.Fields, "password")
}

func (s *IntegrationTestSuite) TestLogin_MergesAnonymousCart() {
	s.register("login@example.com")

	productID := s.seedProduct("Aurora Pendant", "AUR-001", "120.00", 10)
	anonCartID := s.anonymousCart("sess-login")
	_, err := s.CartService.AddItem(s.Ctx, anonCartID, sessionAccess("sess-login"), &domain.AddCartItemInput{ProductID: productID, Quantity: 2})
	s.Require().NoError(err)

	result, err := s.AuthService.Login(s.Ctx, &domain.LoginInput{
		Email:     "login@example.com",
		Password:  "Sup3rSecret!",
		SessionID: "sess-login",
	})
	s.Require().NoError(err)
	s.Require().NotNil(result.CartID)

	cart, err := s.CartService.GetCart(s.Ctx, *result.CartID, userAccess(result.User.ID))
	s.Require().NoError(err)
	s.Equal(2, cart.ItemCount())
}

func (s *IntegrationTestSuite) TestLogin_InvalidCredentials() {
	s.register("wrong@example.com")

	_, err := s.AuthService.Login(s.Ctx, &domain.LoginInput{Email: "wrong@example.com", Password: "nope1234"})
	s.Require().ErrorIs(err, service.ErrInvalidCredentials)

	_, err = s.AuthService.Login(s.Ctx, &domain.LoginInput{Email: "ghost@example.com", Password: "nope1234"})
	s.Require().ErrorIs(err, service.ErrInvalidCredentials)
}

func (s *IntegrationTestSuite) TestAuthenticateAdmin_RequiresAdminRole() {
	result := s.register("staff@example.com")

	_, err := s.AuthService.AuthenticateAdmin(s.Ctx, "staff@example.com", "Sup3rSecret!")
	s.Require().ErrorIs(err, service.ErrForbidden)

	_, err = s.DbPool.Exec(s.Ctx, `UPDATE users SET role = 'admin' WHERE id = $1`, result.User.ID)
	s.Require().NoError(err)

	admin, err := s.AuthService.AuthenticateAdmin(s.Ctx, "staff@example.com", "Sup3rSecret!")
	s.Require().NoError(err)
	s.Equal(domain.RoleAdmin, admin.Role)

	customers, err := s.AuthService.ListCustomers(s.Ctx, 0, 0)
	s.Require().NoError(err)
	s.Empty(customers)
}

func (s *IntegrationTestSuite) TestResetPassword_Flow() {
	result := s.register("reset@example.com")

	s.Require().NoError(s.AuthService.ForgotPassword(s.Ctx, &domain.ForgotPasswordInput{Email: "reset@example.com"}))
	s.Require().NoError(s.AuthService.ForgotPassword(s.Ctx, &domain.ForgotPasswordInput{Email: "unknown@example.com"}))

	var resetToken string
	err := s.DbPool.QueryRow(s.Ctx, `SELECT reset_token FROM users WHERE id = $1`, result.User.ID).Scan(&resetToken)
	s.Require().NoError(err)
	s.NotEmpty(resetToken)

	var payload []byte
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT payload FROM outbox WHERE event_type = $1 AND aggregate_id = $2`,
		domain.EventEmailRequested,
		"reset@example.com",
	).Scan(&payload)
	s.Require().NoError(err)

	var event domain.EmailRequestedEvent
	s.Require().NoError(json.Unmarshal(payload, &event))
	s.Equal(domain.EmailPasswordReset, event.Type)

	var data domain.PasswordResetData
	s.Require().NoError(json.Unmarshal(event.Data, &data))
	s.Equal("Ivo Horvat", data.Name)
	s.Contains(data.ResetURL, "http://localhost:3000/reset-password?token=")

	err = s.AuthService.ResetPassword(s.Ctx, &domain.ResetPasswordInput{Token: resetToken, Password: "Fr3shSecret!"})
	s.Require().NoError(err)

	_, err = s.AuthService.Login(s.Ctx, &domain.LoginInput{Email: "reset@example.com", Password: "Fr3shSecret!"})
	s.Require().NoError(err)

	err = s.AuthService.ResetPassword(s.Ctx, &domain.ResetPasswordInput{Token: resetToken, Password: "Th1rdSecret!"})
	s.Require().ErrorIs(err, repository.ErrInvalidResetToken)
}

func (s *IntegrationTestSuite) TestDeleteCustomer() {
	result := s.register("gone@example.com")

	s.Require().NoError(s.AuthService.DeleteCustomer(s.Ctx, result.User.ID))

	_, err := s.AuthService.Me(s.Ctx, result.User.ID)
	s.Require().ErrorIs(err, repository.ErrUserNotFound)
}
