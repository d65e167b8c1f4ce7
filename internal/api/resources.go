package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

// Category is a marketplace service category.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// CategoriesService lists service categories.
type CategoriesService struct {
	r Requester
}

// List returns all categories.
func (s *CategoriesService) List(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := get(ctx, s.r, "/categories", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Favorite is a service the user saved.
type Favorite struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"serviceId"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FavoritesService manages saved services.
type FavoritesService struct {
	r Requester
}

// List returns the user's favorites.
func (s *FavoritesService) List(ctx context.Context) ([]Favorite, error) {
	var out []Favorite
	if err := get(ctx, s.r, "/favorites", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Add saves a service.
func (s *FavoritesService) Add(ctx context.Context, serviceID string) (*Favorite, error) {
	if serviceID == "" {
		return nil, errors.New(errors.ErrCodeMissingField, "service id is required")
	}
	var out Favorite
	if err := post(ctx, s.r, "/favorites", map[string]string{"serviceId": serviceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remove unsaves a service.
func (s *FavoritesService) Remove(ctx context.Context, serviceID string) error {
	if serviceID == "" {
		return errors.New(errors.ErrCodeMissingField, "service id is required")
	}
	return s.r.Do(ctx, http.MethodDelete, "/favorites/"+url.PathEscape(serviceID), nil, nil)
}

// Conversation is a message thread with another user.
type Conversation struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participantId"`
	Participant   string    `json:"participantName"`
	LastMessage   string    `json:"lastMessage"`
	Unread        int       `json:"unreadCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Message is one message in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SendMessageRequest sends a message to a user.
type SendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// MessagesService reads and sends messages.
type MessagesService struct {
	r Requester
}

// Conversations returns the user's threads, most recent first.
func (s *MessagesService) Conversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := get(ctx, s.r, "/messages/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the messages of one conversation.
func (s *MessagesService) List(ctx context.Context, conversationID string) ([]Message, error) {
	if conversationID == "" {
		return nil, errors.New(errors.ErrCodeMissingField, "conversation id is required")
	}
	var out []Message
	if err := get(ctx, s.r, "/messages/conversations/"+url.PathEscape(conversationID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send sends a message.
func (s *MessagesService) Send(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if req.RecipientID == "" || req.Content == "" {
		return nil, errors.New(errors.ErrCodeMissingField, "recipient and content are required")
	}
	var out Message
	if err := post(ctx, s.r, "/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rating is a review of a service provider.
type Rating struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"serviceId"`
	UserID    string    `json:"userId"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRating creates a rating.
type NewRating struct {
	ServiceID string `json:"serviceId"`
	Score     int    `json:"score"`
	Comment   string `json:"comment,omitempty"`
}

// RatingsService reads and writes ratings.
type RatingsService struct {
	r Requester
}

// List returns the ratings of a service.
func (s *RatingsService) List(ctx context.Context, serviceID string) ([]Rating, error) {
	var out []Rating
	path := withQuery("/ratings", url.Values{"serviceId": {serviceID}})
	if err := get(ctx, s.r, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create rates a service from 1 to 5.
func (s *RatingsService) Create(ctx context.Context, rating NewRating) (*Rating, error) {
	if rating.ServiceID == "" {
		return nil, errors.New(errors.ErrCodeMissingField, "service id is required")
	}
	if rating.Score < 1 || rating.Score > 5 {
		return nil, errors.Newf(errors.ErrCodeInvalidRequest, "score must be between 1 and 5, got %d", rating.Score)
	}
	var out Rating
	if err := post(ctx, s.r, "/ratings", rating, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
