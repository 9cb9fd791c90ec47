package app

import (
	"context"

	"github.com/eti-roma/verte-culture-connect-sub000/internal/config"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/models"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/repositories"
	"github.com/eti-roma/verte-culture-connect-sub000/internal/services"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func record[T any](db *gorm.DB, cfg *config.Config, name string, scoped bool, filters []string, logger *zap.Logger) *services.RecordService[T] {
	return services.NewRecordService[T](name, repositories.NewGORMTable[T](db), services.RecordOptions{
		Filters:   filters,
		Scoped:    scoped,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	}, logger.Named("records"))
}

// collections lists the tables served under /records.
func collections(db *gorm.DB, cfg *config.Config, notifications *services.NotificationService, photos *services.RecordService[models.PhotoAnalysis], logger *zap.Logger) []services.Collection {
	posts := repositories.NewGORMTable[models.CommunityPost](db)

	problems := record[models.ProblemReport](db, cfg, "problem_reports", true, []string{"status", "severity"}, logger).
		OnInsert(services.NotifyOnInsert(notifications, func(_ context.Context, userID string, r *models.ProblemReport) (services.NotificationEvent, bool) {
			return services.NotificationEvent{
				UserID: userID,
				Kind:   services.NotifyProblemReported,
				Title:  "Signalement enregistré",
				Body:   r.Title,
			}, true
		}))

	communityPosts := record[models.CommunityPost](db, cfg, "community_posts", false, []string{"category", "user_id"}, logger).
		OnInsert(services.NotifyOnInsert(notifications, func(_ context.Context, userID string, p *models.CommunityPost) (services.NotificationEvent, bool) {
			return services.NotificationEvent{
				UserID: userID,
				Kind:   services.NotifyPostPublished,
				Title:  "Publication en ligne",
				Body:   p.Title,
			}, true
		}))

	comments := record[models.Comment](db, cfg, "comments", false, []string{"post_id", "user_id"}, logger).
		OnInsert(services.NotifyOnInsert(notifications, func(ctx context.Context, userID string, c *models.Comment) (services.NotificationEvent, bool) {
			post, err := posts.GetByID(ctx, c.PostID)
			if err != nil || post.UserID == userID {
				return services.NotificationEvent{}, false
			}
			return services.NotificationEvent{
				UserID: post.UserID,
				Kind:   services.NotifyCommentAdded,
				Title:  "Nouveau commentaire",
				Body:   c.Content,
			}, true
		}))

	return []services.Collection{
		record[models.CultureParameter](db, cfg, "culture_parameters", true, []string{"culture_type", "growth_stage"}, logger),
		photos,
		record[models.Producer](db, cfg, "producers", false, []string{"specialty", "location"}, logger),
		record[models.DiseasePest](db, cfg, "diseases_pests", false, []string{"type", "severity"}, logger),
		problems,
		record[models.TrainingModule](db, cfg, "training_modules", false, []string{"level"}, logger),
		record[models.TrainingSection](db, cfg, "training_sections", false, []string{"module_id"}, logger),
		record[models.TrainingResource](db, cfg, "training_resources", false, []string{"section_id", "kind"}, logger),
		communityPosts,
		comments,
		record[models.Like](db, cfg, "likes", false, []string{"post_id", "user_id"}, logger),
	}
}
