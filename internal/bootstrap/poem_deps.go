package bootstrap

import (
	"context"
	"fmt"

	"poetry_server/adapter/in/http"
	"poetry_server/adapter/out/dataset"
	"poetry_server/adapter/out/model"
	"poetry_server/config"
	"poetry_server/core/port/out"
	"poetry_server/core/service/corpus"
	"poetry_server/core/service/emotion"
	"poetry_server/core/service/retrieval"
	"poetry_server/infra/database"
	"poetry_server/pkg/apperr"
	"poetry_server/pkg/cache"
	"poetry_server/pkg/logger"
	"poetry_server/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const latencyWindow = 1000

// Dependencies is the assembled service graph. It is built once and not mutated afterwards.
type Dependencies struct {
	Config *config.Config

	Artifact   *model.ArtifactConfig
	Labels     *emotion.LabelMap
	Model      out.ScoreModel
	Classifier emotion.TextClassifier
	Corpus     *corpus.Index
	Service    *retrieval.Service

	Redis *redis.Client

	ClassifierLatency *metrics.LatencyTracker
	RouteLatency      *metrics.LatencyRegistry
	ReadinessChecks   []http.ReadinessCheck
}

// NewDependencies loads the model artifact and corpus and wires the retrieval
// service. Configuration problems are returned as CONFIG_ERROR and are fatal.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{
		Config:            cfg,
		ClassifierLatency: metrics.NewLatencyTracker(latencyWindow),
		RouteLatency:      metrics.NewLatencyRegistry(latencyWindow),
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Model artifact
	artifact, err := model.LoadArtifactConfig(cfg.ModelPath)
	if err != nil {
		return fail(err)
	}
	if err := artifact.CheckMaxTokens(cfg.ModelMaxTokens); err != nil {
		return fail(err)
	}
	deps.Artifact = artifact

	labels, err := emotion.ResolveLabels(artifact.ID2Label)
	if err != nil {
		return fail(err)
	}
	deps.Labels = labels
	if labels.Overridden() {
		logger.WithField("labels", labels.IDToLabel()).Warn("Model has placeholder labels, applied training label order")
	}
	logger.WithField("labels", labels.IDToLabel()).Info("Model labels resolved")

	tokenizer, err := model.LoadWordPiece(artifact.VocabPath(), artifact.DoLowerCase)
	if err != nil {
		return fail(apperr.ConfigErrorf("load tokenizer: %v", err))
	}

	scoreModel, err := newScoreModel(cfg, labels)
	if err != nil {
		return fail(apperr.ConfigErrorf("create score model: %v", err))
	}
	deps.Model = scoreModel
	if hc, ok := scoreModel.(out.ModelHealthChecker); ok {
		deps.ReadinessChecks = append(deps.ReadinessChecks, http.ReadinessCheck{Name: "model", Check: hc.Ready})
	}

	var classifier emotion.TextClassifier = emotion.NewClassifier(tokenizer, scoreModel, labels, emotion.ClassifierConfig{
		MaxTokens: cfg.ModelMaxTokens,
		Latency:   deps.ClassifierLatency,
	})

	// Classification cache (optional)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis connection failed, classification cache disabled")
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })

			redisCache := cache.NewRedisCache(redisClient)
			namespace := scoreModel.Name() + ":" + artifact.Fingerprint()
			classifier = emotion.NewCachedClassifier(classifier, redisCache, namespace, cfg.CacheTTL())
			deps.ReadinessChecks = append(deps.ReadinessChecks, http.ReadinessCheck{Name: "redis", Check: redisCache.Ping})
			logger.Info("Classification cache enabled (ttl=%s)", cfg.CacheTTL())
		}
	}
	deps.Classifier = classifier

	// Corpus
	table, err := loadTable(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	corpusLog := logger.Default().Zerolog("corpus")
	index, err := corpus.Build(table, corpus.BuildOptions{
		TextColumn:    cfg.PoetryTextColumn,
		EmotionColumn: cfg.PoetryEmotionColumn,
		Log:           &corpusLog,
	})
	if err != nil {
		return fail(err)
	}
	deps.Corpus = index

	deps.Service = retrieval.NewService(classifier, index, labels.Tags(), scoreModel.Name())
	return deps, cleanup, nil
}

func newScoreModel(cfg *config.Config, labels *emotion.LabelMap) (out.ScoreModel, error) {
	switch cfg.ModelBackend {
	case config.BackendOpenAI:
		names := make([]string, 0, labels.Len())
		for _, t := range labels.Tags() {
			names = append(names, t.String())
		}
		return model.NewOpenAIScorer(model.OpenAIScorerConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.OpenAIBaseURL,
			Labels:  names,
		})
	case config.BackendKServe:
		inferLog := logger.Default().Zerolog("inference")
		return model.NewInferenceClient(model.InferenceConfig{
			BaseURL:    cfg.InferenceURL,
			ModelName:  cfg.InferenceModelName,
			OutputName: cfg.InferenceOutputName,
			NumClasses: labels.Len(),
			Timeout:    cfg.InferenceTimeout(),
			Log:        &inferLog,
		})
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.ModelBackend)
	}
}

// loadTable reads the corpus once; store connections are closed afterwards.
func loadTable(ctx context.Context, cfg *config.Config) (*out.Table, error) {
	var (
		src        out.DatasetSource
		closeStore func()
	)

	switch cfg.DatasetSource {
	case config.SourcePostgres:
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		closeStore = func() { db.Close() }
		pg, err := dataset.NewPostgresSource(db, cfg.PoetryTable)
		if err != nil {
			closeStore()
			return nil, err
		}
		src = pg
	case config.SourceMongo:
		client, err := database.NewMongo(ctx, cfg.MongoDBURL)
		if err != nil {
			return nil, err
		}
		closeStore = func() { _ = client.Disconnect(context.Background()) }
		src = dataset.NewMongoSource(client, cfg.MongoDBName, cfg.PoetryCollection)
	default:
		src = dataset.NewCSVSource(cfg.PoetryCSVPath)
	}
	if closeStore != nil {
		defer closeStore()
	}

	logger.WithField("source", src.Name()).Info("Loading poem dataset")
	return src.Load(ctx)
}
