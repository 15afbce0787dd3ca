package cmd

import (
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/samplecast/internal/meta"
	"github.com/luma/samplecast/sample"
	"github.com/luma/samplecast/storage"
)

// NewRouter builds the HTTP inspection API over store.
func NewRouter(debugHTTP bool, store storage.Store, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, meta.GetInfo())
	})

	r.GET("/instances", func(c *gin.Context) {
		backup, err := store.Backup()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/json", backup)
	})

	r.GET("/instances/:keyHash", func(c *gin.Context) {
		keyHash, err := sample.ParseKeyHash(c.Param("keyHash"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		record, err := store.Get(c.Request.Context(), keyHash)
		switch {
		case errors.Is(err, storage.ErrInstanceNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return

		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/json", record)
	})

	r.GET("/instances/:keyHash/samples", func(c *gin.Context) {
		keyHash, err := sample.ParseKeyHash(c.Param("keyHash"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		samples, err := store.Samples(c.Request.Context(), keyHash)
		switch {
		case errors.Is(err, storage.ErrInstanceNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return

		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		doc, err := samplesDoc(keyHash, samples)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Data(http.StatusOK, "application/json", doc)
	})

	return r
}

// samplesDoc describes the kept samples of an instance, oldest first.
func samplesDoc(keyHash sample.KeyHash, samples []sample.Sample) (doc []byte, err error) {
	doc, err = sjson.SetBytes([]byte(`{"samples":[]}`), "keyHash", keyHash.String())
	if err != nil {
		return nil, err
	}

	for _, s := range samples {
		entry, err := sjson.SetBytes([]byte(`{}`), "kind", s.Kind().String())
		if err != nil {
			return nil, err
		}

		if payload, ok := s.SerializedPayload(); ok {
			if entry, err = sjson.SetBytes(entry, "representation", payload.Representation().String()); err != nil {
				return nil, err
			}
		}

		if entry, err = sjson.SetBytes(entry, "payloadSize", s.PayloadSize()); err != nil {
			return nil, err
		}

		if doc, err = sjson.SetRawBytes(doc, "samples.-1", entry); err != nil {
			return nil, err
		}
	}

	return doc, nil
}
