package store

import (
	"fmt"
	"strings"
	"time"
)

// Category identifies one of the listing verticals
type Category string

const (
	CategoryRealEstate Category = "real-estate"
	CategoryVehicle    Category = "vehicle"
	CategoryLand       Category = "land"
	CategoryWorkplace  Category = "workplace"
)

// Categories lists every category in display order
var Categories = []Category{CategoryRealEstate, CategoryVehicle, CategoryLand, CategoryWorkplace}

// PathSegment is the REST collection name, e.g. "real-estates".
func (c Category) PathSegment() string {
	return string(c) + "s"
}

// ParseCategory accepts both the singular name and the collection name.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q: %w", s, ErrInvalid)
}

// Role is a user's permission level
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ListingStatus is the moderation/lifecycle state of a listing
type ListingStatus string

const (
	StatusActive  ListingStatus = "active"
	StatusPassive ListingStatus = "passive"
	StatusSold    ListingStatus = "sold"
)

func (s ListingStatus) valid() bool {
	return s == StatusActive || s == StatusPassive || s == StatusSold
}

// NotificationType classifies notifications for the client
type NotificationType string

const (
	NotificationMessage  NotificationType = "message"
	NotificationFavorite NotificationType = "favorite"
	NotificationListing  NotificationType = "listing"
	NotificationSystem   NotificationType = "system"
)

// User is a marketplace account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	City         string    `json:"city,omitempty"`
	Role         Role      `json:"role"`
	Banned       bool      `json:"banned"`
	PasswordHash string    `json:"-" msgpack:"password_hash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is what other users may see of an account
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips private fields
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, City: u.City, CreatedAt: u.CreatedAt}
}

// ProfileUpdate carries the editable profile fields; nil means unchanged
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	City  *string `json:"city,omitempty"`
}

// RealEstateDetails are the attributes of a house/apartment listing
type RealEstateDetails struct {
	OfferType   string  `json:"offerType"`
	Rooms       int     `json:"rooms"`
	Area        float64 `json:"area"`
	Floor       int     `json:"floor"`
	BuildingAge int     `json:"buildingAge"`
	Heating     string  `json:"heating,omitempty"`
	Furnished   bool    `json:"furnished"`
}

// VehicleDetails are the attributes of a vehicle listing
type VehicleDetails struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	Mileage  int    `json:"mileage"`
	Fuel     string `json:"fuel"`
	Gear     string `json:"gear"`
	BodyType string `json:"bodyType,omitempty"`
	Color    string `json:"color,omitempty"`
}

// LandDetails are the attributes of a land listing
type LandDetails struct {
	Area          float64 `json:"area"`
	ZoningStatus  string  `json:"zoningStatus"`
	ParcelNo      string  `json:"parcelNo,omitempty"`
	BlockNo       string  `json:"blockNo,omitempty"`
	TitleDeedType string  `json:"titleDeedType,omitempty"`
}

// WorkplaceDetails are the attributes of a shop/office listing
type WorkplaceDetails struct {
	OfferType string  `json:"offerType"`
	Type      string  `json:"type"`
	Area      float64 `json:"area"`
	Floor     int     `json:"floor"`
	OpenArea  bool    `json:"openArea"`
}

// Listing is a classified ad in one of the categories
type Listing struct {
	ID            string             `json:"id"`
	Category      Category           `json:"category"`
	OwnerID       string             `json:"ownerId"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	Price         float64            `json:"price"`
	Currency      string             `json:"currency"`
	City          string             `json:"city"`
	District      string             `json:"district,omitempty"`
	Images        []string           `json:"images"`
	Status        ListingStatus      `json:"status"`
	FavoriteCount int                `json:"favoriteCount"`
	ViewCount     int                `json:"viewCount"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	RealEstate    *RealEstateDetails `json:"realEstate,omitempty"`
	Vehicle       *VehicleDetails    `json:"vehicle,omitempty"`
	Land          *LandDetails       `json:"land,omitempty"`
	Workplace     *WorkplaceDetails  `json:"workplace,omitempty"`
}

// ListingInput is the writable part of a listing
type ListingInput struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Price       float64            `json:"price"`
	Currency    string             `json:"currency"`
	City        string             `json:"city"`
	District    string             `json:"district"`
	Status      ListingStatus      `json:"status,omitempty"`
	RealEstate  *RealEstateDetails `json:"realEstate,omitempty"`
	Vehicle     *VehicleDetails    `json:"vehicle,omitempty"`
	Land        *LandDetails       `json:"land,omitempty"`
	Workplace   *WorkplaceDetails  `json:"workplace,omitempty"`
}

const (
	maxTitleLen       = 150
	maxDescriptionLen = 5000
	maxImages         = 20
	maxMessageLen     = 2000
)

// Validate checks the input against the category it is written to
func (in *ListingInput) Validate(c Category) error {
	in.Title = strings.TrimSpace(in.Title)
	in.City = strings.TrimSpace(in.City)
	in.District = strings.TrimSpace(in.District)
	if in.Currency == "" {
		in.Currency = "TRY"
	}

	switch {
	case in.Title == "":
		return fmt.Errorf("title is required: %w", ErrInvalid)
	case len(in.Title) > maxTitleLen:
		return fmt.Errorf("title longer than %d characters: %w", maxTitleLen, ErrInvalid)
	case len(in.Description) > maxDescriptionLen:
		return fmt.Errorf("description longer than %d characters: %w", maxDescriptionLen, ErrInvalid)
	case in.Price < 0:
		return fmt.Errorf("price must not be negative: %w", ErrInvalid)
	case in.City == "":
		return fmt.Errorf("city is required: %w", ErrInvalid)
	case in.Status != "" && !in.Status.valid():
		return fmt.Errorf("unknown status %q: %w", in.Status, ErrInvalid)
	}

	present := map[Category]bool{
		CategoryRealEstate: in.RealEstate != nil,
		CategoryVehicle:    in.Vehicle != nil,
		CategoryLand:       in.Land != nil,
		CategoryWorkplace:  in.Workplace != nil,
	}
	for cat, ok := range present {
		if cat == c && !ok {
			return fmt.Errorf("%s details are required: %w", c, ErrInvalid)
		}
		if cat != c && ok {
			return fmt.Errorf("%s details on a %s listing: %w", cat, c, ErrInvalid)
		}
	}

	switch c {
	case CategoryRealEstate:
		d := in.RealEstate
		if d.OfferType != "sale" && d.OfferType != "rent" {
			return fmt.Errorf("offer type must be sale or rent: %w", ErrInvalid)
		}
		if d.Rooms < 0 || d.Area <= 0 || d.BuildingAge < 0 {
			return fmt.Errorf("rooms, area and building age must be positive: %w", ErrInvalid)
		}
	case CategoryVehicle:
		d := in.Vehicle
		if strings.TrimSpace(d.Brand) == "" || strings.TrimSpace(d.Model) == "" {
			return fmt.Errorf("brand and model are required: %w", ErrInvalid)
		}
		if d.Year < 1900 || d.Year > time.Now().Year()+1 {
			return fmt.Errorf("year %d out of range: %w", d.Year, ErrInvalid)
		}
		if d.Mileage < 0 {
			return fmt.Errorf("mileage must not be negative: %w", ErrInvalid)
		}
	case CategoryLand:
		if in.Land.Area <= 0 {
			return fmt.Errorf("area must be positive: %w", ErrInvalid)
		}
	case CategoryWorkplace:
		d := in.Workplace
		if d.OfferType != "sale" && d.OfferType != "rent" {
			return fmt.Errorf("offer type must be sale or rent: %w", ErrInvalid)
		}
		if d.Area <= 0 {
			return fmt.Errorf("area must be positive: %w", ErrInvalid)
		}
	}
	return nil
}

// ListingFilter selects listings; zero values mean "no constraint"
type ListingFilter struct {
	Category Category
	OwnerID  string
	City     string
	District string
	Query    string
	MinPrice *float64
	MaxPrice *float64
	// Status defaults to active; AnyStatus lifts the constraint.
	Status    ListingStatus
	AnyStatus bool
	Sort      string
	Page      int
	Size      int

	OfferType     string
	MinRooms      int
	MinArea       *float64
	MaxArea       *float64
	Brand         string
	Fuel          string
	Gear          string
	MinYear       int
	MaxYear       int
	MaxMileage    int
	Zoning        string
	WorkplaceType string
}

// Sort orders accepted by ListingFilter.Sort
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

// ListingPage is one page of a listing query
type ListingPage struct {
	Items []*Listing `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
}

// Message is one chat message between two users about a listing
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	ListingID      string    `json:"listingId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Conversation groups the messages two users exchange about one listing
type Conversation struct {
	ID             string
	ListingID      string
	ParticipantIDs []string
	LastMessage    *Message
	Unread         map[string]int
	Hidden         map[string]bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConversationView is a conversation as seen by one participant
type ConversationView struct {
	ID           string     `json:"id"`
	ListingID    string     `json:"listingId"`
	ListingTitle string     `json:"listingTitle"`
	OtherUser    PublicUser `json:"otherUser"`
	LastMessage  *Message   `json:"lastMessage,omitempty"`
	UnreadCount  int        `json:"unreadCount"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Notification is a per-user event shown in the notification panel
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	RefID     string           `json:"refId,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Stats feeds the admin dashboard
type Stats struct {
	Users               int              `json:"users"`
	Admins              int              `json:"admins"`
	BannedUsers         int              `json:"bannedUsers"`
	Listings            int              `json:"listings"`
	ActiveListings      int              `json:"activeListings"`
	ListingsByCategory  map[Category]int `json:"listingsByCategory"`
	Favorites           int              `json:"favorites"`
	Conversations       int              `json:"conversations"`
	Messages            int              `json:"messages"`
	Notifications       int              `json:"notifications"`
	UnreadNotifications int              `json:"unreadNotifications"`
}
