package main

import (
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/courses"
	"faceattend/internal/extractor"
	"faceattend/internal/facematch"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/identity"
	"faceattend/internal/imagestore"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	policy, err := facematch.ParsePolicy(cfg.MatchPolicy)
	if err != nil {
		return err
	}
	matcher := facematch.New(cfg.MatchTolerance, policy)

	faces := extractor.NewPool(
		extractor.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.FaceTimeout),
		cfg.FacePoolSize, cfg.FaceTimeout,
	)

	var archive identity.Archive
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		archive = imagestore.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("image archive configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("image archive not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	users := identity.NewService(identity.NewRepository(db.Client), faces, matcher, archive)
	catalog := courses.NewService(courses.NewRepository(db.Client), users)
	att := attendance.NewService(attendance.NewRepository(db.Client), cfg.CooldownWindow)
	ctx := context.Background()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/api/register", func(c *gin.Context) {
		name := c.PostForm("name")
		password := c.PostForm("password")
		role, err := identity.ParseRole(c.DefaultPostForm("role", "student"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "Unknown role."})
			return
		}
		if name == "" || password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "Name and password are required."})
			return
		}

		images, err := captureImages(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": err.Error()})
			return
		}
		if role != identity.RoleAdmin && len(images) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "Please capture all face images."})
			return
		}

		user, err := users.Register(c.Request.Context(), name, password, role, images)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "msg": "Registration successful! Please log in.", "user_id": user.ID})
	})

	r.POST("/api/login", func(c *gin.Context) {
		name := c.PostForm("name")
		password := c.PostForm("password")
		user, err := users.LoginPassword(c.Request.Context(), name, password)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "msg": "Invalid name or password"})
				return
			}
			respondError(c, err)
			return
		}
		issueSession(c, cfg, user, "Login successful!")
	})

	r.POST("/api/login_face", func(c *gin.Context) {
		name := c.PostForm("name")
		image, err := formImage(c, "image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "No image provided."})
			return
		}
		user, err := users.LoginFace(c.Request.Context(), name, image)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrUserNotFound), errors.Is(err, identity.ErrNoEncodings):
				c.JSON(http.StatusNotFound, gin.H{"success": false, "msg": "User not found or no face encoding."})
			case errors.Is(err, identity.ErrNoMatch):
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "msg": "Face does not match."})
			default:
				respondError(c, err)
			}
			return
		}
		issueSession(c, cfg, user, "Login successful!")
	})

	authed := r.Group("/api", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authed.POST("/mark_attendance", auth.RequireRole(identity.RoleStudent), func(c *gin.Context) {
		image, err := formImage(c, "image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "No image provided."})
			return
		}
		courseID := c.PostForm("course_id")
		if courseID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "No course provided."})
			return
		}

		user, _, err := users.Identify(c.Request.Context(), image)
		if err != nil {
			if errors.Is(err, identity.ErrNoMatch) {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "msg": "Face not recognized."})
				return
			}
			respondError(c, err)
			return
		}

		enrolled, err := catalog.IsEnrolled(c.Request.Context(), user.ID, courseID)
		if err != nil {
			respondError(c, err)
			return
		}
		if !enrolled {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "msg": "Not enrolled in this course."})
			return
		}

		out, err := att.Record(c.Request.Context(), user.ID, courseID)
		if err != nil {
			respondError(c, err)
			return
		}
		if out.Status == attendance.StatusDuplicate {
			c.JSON(http.StatusOK, gin.H{"success": true, "msg": "Welcome back, " + user.Name + "! Attendance already logged recently."})
			return
		}

		if err := q.Publish(ctx, queue.Attendance(out.Log.ID)); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "msg": "Welcome, " + user.Name + "! Attendance logged."})
	})

	authed.GET("/logs", auth.RequireRole(identity.RoleTeacher, identity.RoleAdmin), func(c *gin.Context) {
		limit, offset := pagination(c)
		logs, err := att.Logs(c.Request.Context(), limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "logs": logs})
	})

	authed.GET("/mylogs", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		limit, offset := pagination(c)
		logs, err := att.UserLogs(c.Request.Context(), claims.UserID, limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "logs": logs})
	})

	authed.GET("/users", auth.RequireRole(identity.RoleTeacher, identity.RoleAdmin), func(c *gin.Context) {
		list, err := users.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "users": list})
	})

	authed.PUT("/users/:id", auth.RequireRole(identity.RoleAdmin), func(c *gin.Context) {
		var role identity.Role
		if v := c.PostForm("role"); v != "" {
			parsed, err := identity.ParseRole(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "Unknown role."})
				return
			}
			role = parsed
		}
		user, err := users.Update(c.Request.Context(), c.Param("id"), c.PostForm("name"), role, c.PostForm("password"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "msg": "User updated successfully.", "user": user})
	})

	authed.DELETE("/users/:id", auth.RequireRole(identity.RoleAdmin), func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		if err := users.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "msg": "User deleted."})
	})

	authed.POST("/semesters", auth.RequireRole(identity.RoleAdmin), func(c *gin.Context) {
		sem, err := catalog.CreateSemester(c.Request.Context(), c.PostForm("name"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "msg": "Semester created!", "semester": sem})
	})

	authed.GET("/semesters", func(c *gin.Context) {
		sems, err := catalog.Semesters(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "semesters": sems})
	})

	authed.POST("/courses", auth.RequireRole(identity.RoleAdmin, identity.RoleTeacher), func(c *gin.Context) {
		course, err := catalog.CreateCourse(c.Request.Context(),
			c.PostForm("name"), c.PostForm("code"), c.PostForm("teacher_id"), c.PostForm("semester_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "msg": "Course created!", "course": course})
	})

	authed.GET("/courses", func(c *gin.Context) {
		list, err := catalog.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "courses": list})
	})

	authed.DELETE("/courses/:id", auth.RequireRole(identity.RoleAdmin, identity.RoleTeacher), func(c *gin.Context) {
		if err := catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "msg": "Course deleted."})
	})

	authed.GET("/courses/:id/enrollments", auth.RequireRole(identity.RoleAdmin, identity.RoleTeacher), func(c *gin.Context) {
		list, err := catalog.Enrollments(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "enrollments": list})
	})

	authed.POST("/enrollments", auth.RequireRole(identity.RoleAdmin, identity.RoleTeacher), func(c *gin.Context) {
		created, err := catalog.Enroll(c.Request.Context(), c.PostForm("student_id"), c.PostForm("course_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if !created {
			c.JSON(http.StatusOK, gin.H{"success": true, "msg": "Student already enrolled in this course."})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "msg": "Student enrolled!"})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// issueSession returns a token pair for the authenticated user.
func issueSession(c *gin.Context, cfg config.App, user *identity.User, msg string) {
	tokens, err := auth.Issue(user, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "msg": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"msg":           msg,
		"role":          user.Role,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// captureImages collects the enrollment batch (face_image_0..4) or a
// single "image" field from a multipart registration form.
func captureImages(c *gin.Context) ([][]byte, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil // no multipart body at all; role may not need images
	}

	var images [][]byte
	for i := 0; i < identity.EnrollmentBatchSize; i++ {
		files := form.File["face_image_"+strconv.Itoa(i)]
		if len(files) == 0 {
			break
		}
		data, err := readUpload(files[0])
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	if len(images) > 0 {
		if len(images) < identity.EnrollmentBatchSize {
			return nil, errors.New("Please capture all face images.")
		}
		return images, nil
	}

	if files := form.File["image"]; len(files) > 0 {
		data, err := readUpload(files[0])
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}
	return nil, nil
}

// formImage reads a single uploaded image field.
func formImage(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	return readUpload(fh)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func pagination(c *gin.Context) (int, int) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}

// respondError maps domain errors to HTTP statuses with the structured
// {success, msg} body every endpoint returns.
func respondError(c *gin.Context, err error) {
	var regErr *identity.RegistrationImageError
	var faceErr *extractor.FaceCountError

	switch {
	case errors.As(err, &regErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": regErr.Error()})
	case errors.As(err, &faceErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "msg": "No face or multiple faces detected."})
	case errors.Is(err, identity.ErrNameTaken),
		errors.Is(err, courses.ErrCodeTaken),
		errors.Is(err, courses.ErrSemesterTaken):
		c.JSON(http.StatusConflict, gin.H{"success": false, "msg": err.Error()})
	case errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, courses.ErrCourseNotFound),
		errors.Is(err, courses.ErrSemesterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "msg": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "msg": "Face service timed out."})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "msg": "Internal server error."})
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
