package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	"github.com/radieske/prediction-market-poc/pkg/amount"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

// Config do bucket de arquivo; Endpoint vazio usa AWS S3, senão MinIO/R2 com path-style
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// PutObjectAPI é o subconjunto do cliente S3 usado aqui
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive grava o registro de cada settlement em settlements/<market_id>.json
type S3Archive struct {
	api    PutObjectAPI
	bucket string
}

func NewS3Archive(api PutObjectAPI, bucket string) *S3Archive {
	return &S3Archive{api: api, bucket: bucket}
}

// New monta o cliente S3 a partir da configuração
func New(ctx context.Context, cfg Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" {
			endpoint = "http://" + endpoint
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3Archive(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket), nil
}

// Payout é uma linha do registro de settlement
type Payout struct {
	TransferID string        `json:"transfer_id"`
	Owner      string        `json:"owner"`
	Amount     amount.Amount `json:"amount"`
}

// Record é o documento arquivado por mercado resolvido
type Record struct {
	Market     events.MarketSnapshot `json:"market"`
	Outcome    bool                  `json:"outcome"`
	TotalPool  amount.Amount         `json:"total_pool"`
	WinnerPool amount.Amount         `json:"winner_pool"`
	Disbursed  amount.Amount         `json:"disbursed"`
	Dust       amount.Amount         `json:"dust"`
	Payouts    []Payout              `json:"payouts"`
	ArchivedAt time.Time             `json:"archived_at"`
}

func NewRecord(s engine.Settlement, at time.Time) Record {
	r := Record{
		Market:     s.Market.Snapshot(),
		Outcome:    s.Outcome,
		TotalPool:  s.TotalPool,
		WinnerPool: s.WinnerPool,
		Disbursed:  s.Disbursed,
		Dust:       s.Dust,
		Payouts:    make([]Payout, 0, len(s.Transfers)),
		ArchivedAt: at.UTC(),
	}
	for _, t := range s.Transfers {
		r.Payouts = append(r.Payouts, Payout{TransferID: t.ID, Owner: t.Recipient, Amount: t.Amount})
	}
	return r
}

func Key(marketID string) string { return "settlements/" + marketID + ".json" }

// Store grava o settlement (sobrescreve: o conteúdo é determinístico por mercado)
func (a *S3Archive) Store(ctx context.Context, s engine.Settlement) error {
	body, err := json.Marshal(NewRecord(s, time.Now()))
	if err != nil {
		return err
	}
	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(Key(s.Market.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", Key(s.Market.ID), err)
	}
	return nil
}
