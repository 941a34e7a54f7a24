package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/cache"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
)

const pingTimeout = 5 * time.Second

// ConnectionStatus reports which backends answered a ping.
type ConnectionStatus struct {
	Store       bool `json:"store"`
	Cache       bool `json:"cache"`
	SalesSource bool `json:"salesSource"`
}

type HealthService struct {
	demand repository.DemandRepository
	cache  cache.ReportCache
	sales  repository.SalesSource
}

// NewHealthService creates the service; reportCache and sales may be nil.
func NewHealthService(demand repository.DemandRepository, reportCache cache.ReportCache, sales repository.SalesSource) *HealthService {
	if reportCache == nil {
		reportCache = cache.NewNoopReportCache()
	}
	return &HealthService{demand: demand, cache: reportCache, sales: sales}
}

func (s *HealthService) Connections(ctx context.Context) ConnectionStatus {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	var status ConnectionStatus
	if err := s.demand.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("record store ping failed")
	} else {
		status.Store = true
	}
	if err := s.cache.Ping(ctx); err == nil {
		status.Cache = true
	}
	if s.sales != nil {
		if err := s.sales.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("sales source ping failed")
		} else {
			status.SalesSource = true
		}
	}
	return status
}
