package service_test

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/internal/repository"
	"github.com/sakashimaa/ravolux/internal/service"
)

func (s *IntegrationTestSuite) TestNewsletter_SubscribeIsIdempotent() {
	first, err := s.NewsletterService.Subscribe(s.Ctx, &domain.SubscribeInput{Email: "Fan@Example.com"})
	s.Require().NoError(err)
	s.Equal("fan@example.com", first.Email)
	s.True(first.IsActive)

	toggled, err := s.NewsletterService.Update(s.Ctx, first.ID, nil)
	s.Require().NoError(err)
	s.False(toggled.IsActive)

	again, err := s.NewsletterService.Subscribe(s.Ctx, &domain.SubscribeInput{Email: "fan@example.com"})
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)
	s.True(again.IsActive)

	inactive := false
	_, err = s.NewsletterService.Update(s.Ctx, first.ID, &domain.UpdateSubscriptionInput{IsActive: &inactive})
	s.Require().NoError(err)

	active, err := s.NewsletterService.List(s.Ctx, true)
	s.Require().NoError(err)
	s.Empty(active)

	all, err := s.NewsletterService.List(s.Ctx, false)
	s.Require().NoError(err)
	s.Len(all, 1)

	s.Require().NoError(s.NewsletterService.Delete(s.Ctx, first.ID))
	s.Require().ErrorIs(s.NewsletterService.Delete(s.Ctx, first.ID), repository.ErrSubscriptionNotFound)
}

func (s *IntegrationTestSuite) TestNewsletter_InvalidEmail() {
	_, err := s.NewsletterService.Subscribe(s.Ctx, &domain.SubscribeInput{Email: "nope"})

	var validationErr *service.ValidationError
	s.Require().True(errors.As(err, &validationErr))
	s.Contains(validationErr.Fields, "email")
}

func (s *IntegrationTestSuite) TestContact_CreateEmitsEvent() {
	msg, err := s.ContactService.Create(s.Ctx, &domain.CreateContactInput{
		Name:    "Marta",
		Email:   "marta@example.com",
		Subject: "Showroom hours",
		Message: "Are you open on Saturday?",
	})
	s.Require().NoError(err)
	s.Equal(domain.ContactStatusNew, msg.Status)
	s.Equal(1, s.outboxCount(domain.EventContactReceived, strconv.FormatInt(msg.ID, 10)))

	updated, err := s.ContactService.UpdateStatus(s.Ctx, msg.ID, &domain.UpdateContactInput{Status: domain.ContactStatusReplied})
	s.Require().NoError(err)
	s.Equal(domain.ContactStatusReplied, updated.Status)

	replied := domain.ContactStatusReplied
	messages, err := s.ContactService.List(s.Ctx, &replied)
	s.Require().NoError(err)
	s.Len(messages, 1)

	bogus := domain.ContactStatus("spam")
	_, err = s.ContactService.List(s.Ctx, &bogus)
	s.Require().Error(err)

	s.Require().NoError(s.ContactService.Delete(s.Ctx, msg.ID))
	s.Require().ErrorIs(s.ContactService.Delete(s.Ctx, msg.ID), repository.ErrContactNotFound)
}

func (s *IntegrationTestSuite) TestEmail_EnqueueWritesOutbox() {
	err := s.EmailService.Enqueue(s.Ctx, &domain.EmailRequest{
		Type: domain.EmailWelcome,
		To:   "new@example.com",
		Data: json.RawMessage(`{"name":"Nina"}`),
	})
	s.Require().NoError(err)
	s.Equal(1, s.outboxCount(domain.EventEmailRequested, "new@example.com"))

	err = s.EmailService.Enqueue(s.Ctx, &domain.EmailRequest{
		Type: "birthday",
		To:   "new@example.com",
	})
	var validationErr *service.ValidationError
	s.Require().True(errors.As(err, &validationErr))
	s.Contains(validationErr.Fields, "type")

	err = s.EmailService.Enqueue(s.Ctx, &domain.EmailRequest{
		Type: domain.EmailWelcome,
		To:   "new@example.com",
		Data: json.RawMessage(`{broken`),
	})
	s.Require().True(errors.As(err, &validationErr))
	s.Contains(validationErr.Fields, "data")
}
