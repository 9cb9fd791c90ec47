package models

import "time"

// CultureParameter is a reading taken on a hydroponic fodder culture.
type CultureParameter struct {
	Base
	Owner
	CultureType string    `json:"culture_type" gorm:"type:varchar(100)" validate:"required,max=100"`
	Temperature float64   `json:"temperature" validate:"gte=-20,lte=60"`
	Humidity    float64   `json:"humidity" validate:"gte=0,lte=100"`
	PH          float64   `json:"ph" gorm:"column:ph" validate:"gte=0,lte=14"`
	WaterLevel  float64   `json:"water_level" validate:"gte=0"`
	LightHours  float64   `json:"light_hours" validate:"gte=0,lte=24"`
	GrowthStage string    `json:"growth_stage" gorm:"type:varchar(50)" validate:"omitempty,max=50"`
	RecordedAt  time.Time `json:"recorded_at"`
	Notes       string    `json:"notes" validate:"omitempty,max=1000"`
}

func (CultureParameter) TableName() string { return "culture_parameters" }

// PhotoAnalysis is the stored outcome of a crop photo diagnosis.
type PhotoAnalysis struct {
	Base
	Owner
	StorageKey      string  `json:"storage_key" gorm:"type:varchar(255)"`
	// ImageURL is resolved from StorageKey on read.
	ImageURL        string  `json:"image_url" gorm:"-"`
	CultureType     string  `json:"culture_type" gorm:"type:varchar(100)"`
	HealthScore     float64 `json:"health_score"`
	Diagnosis       string  `json:"diagnosis"`
	Recommendations string  `json:"recommendations"`
	Status          string  `json:"status" gorm:"type:varchar(20)"`
}

func (PhotoAnalysis) TableName() string { return "photo_analyses" }

// Producer is an entry of the producer directory and map.
type Producer struct {
	Base
	Owner
	Name      string  `json:"name" gorm:"type:varchar(150)" validate:"required,min=2,max=150"`
	Location  string  `json:"location" gorm:"type:varchar(255)" validate:"required,max=255"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Phone     string  `json:"phone" gorm:"type:varchar(32)" validate:"omitempty,e164"`
	Specialty string  `json:"specialty" gorm:"type:varchar(100)" validate:"omitempty,max=100"`
	Capacity  float64 `json:"capacity" validate:"gte=0"`
}

func (Producer) TableName() string { return "producers" }

// DiseasePest is a catalog entry describing a disease or a pest.
type DiseasePest struct {
	Base
	Name       string `json:"name" gorm:"type:varchar(150)" validate:"required,max=150"`
	Type       string `json:"type" gorm:"type:varchar(20)" validate:"required,oneof=disease pest"`
	Symptoms   string `json:"symptoms"`
	Treatment  string `json:"treatment"`
	Prevention string `json:"prevention"`
	Severity   string `json:"severity" gorm:"type:varchar(20)" validate:"omitempty,oneof=low medium high"`
}

func (DiseasePest) TableName() string { return "diseases_pests" }

// ProblemReport is a problem raised by a producer about a culture.
type ProblemReport struct {
	Base
	Owner
	Title       string `json:"title" gorm:"type:varchar(200)" validate:"required,max=200"`
	Description string `json:"description" validate:"required"`
	Severity    string `json:"severity" gorm:"type:varchar(20)" validate:"omitempty,oneof=low medium high"`
	Status      string `json:"status" gorm:"type:varchar(20)" validate:"omitempty,oneof=open in_progress resolved"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,url"`
}

func (ProblemReport) TableName() string { return "problem_reports" }

// TrainingModule groups sections of the learning module.
type TrainingModule struct {
	Base
	Title           string `json:"title" gorm:"type:varchar(200)" validate:"required,max=200"`
	Description     string `json:"description"`
	Level           string `json:"level" gorm:"type:varchar(20)" validate:"omitempty,oneof=beginner intermediate advanced"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	OrderIndex      int    `json:"order_index"`
}

func (TrainingModule) TableName() string { return "training_modules" }

// TrainingSection is one chapter of a training module.
type TrainingSection struct {
	Base
	ModuleID   string `json:"module_id" gorm:"index;type:varchar(36)" validate:"required"`
	Title      string `json:"title" gorm:"type:varchar(200)" validate:"required,max=200"`
	Content    string `json:"content"`
	OrderIndex int    `json:"order_index"`
}

func (TrainingSection) TableName() string { return "training_sections" }

// TrainingResource is a link or file attached to a training section.
type TrainingResource struct {
	Base
	SectionID string `json:"section_id" gorm:"index;type:varchar(36)" validate:"required"`
	Title     string `json:"title" gorm:"type:varchar(200)" validate:"required,max=200"`
	URL       string `json:"url" validate:"required,url"`
	Kind      string `json:"kind" gorm:"type:varchar(20)" validate:"omitempty,oneof=video pdf article"`
}

func (TrainingResource) TableName() string { return "training_resources" }

// CommunityPost is a message on the community feed.
type CommunityPost struct {
	Base
	Owner
	Title    string `json:"title" gorm:"type:varchar(200)" validate:"required,max=200"`
	Content  string `json:"content" validate:"required"`
	Category string `json:"category" gorm:"type:varchar(50)" validate:"omitempty,max=50"`
}

func (CommunityPost) TableName() string { return "community_posts" }

// Comment answers a community post.
type Comment struct {
	Base
	Owner
	PostID  string `json:"post_id" gorm:"index;type:varchar(36)" validate:"required"`
	Content string `json:"content" validate:"required,max=2000"`
}

func (Comment) TableName() string { return "comments" }

// Like is a single user's like on a post; one per (post, user).
type Like struct {
	Base
	PostID string `json:"post_id" gorm:"uniqueIndex:idx_likes_post_user;type:varchar(36)" validate:"required"`
	UserID string `json:"user_id" gorm:"uniqueIndex:idx_likes_post_user;type:varchar(36)"`
}

func (Like) TableName() string { return "likes" }

// SetOwner stamps the like with the authenticated user id.
func (l *Like) SetOwner(userID string) { l.UserID = userID }

// Notification is a message addressed to one user.
type Notification struct {
	Base
	Owner
	Kind   string     `json:"kind" gorm:"type:varchar(50)"`
	Title  string     `json:"title"`
	Body   string     `json:"body"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

func (Notification) TableName() string { return "notifications" }

// All lists every model migrated by the service.
func All() []any {
	return []any{
		&User{}, &OTPChallenge{}, &Profile{},
		&CultureParameter{}, &PhotoAnalysis{}, &Producer{}, &DiseasePest{}, &ProblemReport{},
		&TrainingModule{}, &TrainingSection{}, &TrainingResource{},
		&CommunityPost{}, &Comment{}, &Like{}, &Notification{},
	}
}
