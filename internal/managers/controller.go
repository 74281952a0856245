package managers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/controllers"
	"github.com/chrissnell/pistation/internal/controllers/cloudupload"
	"github.com/chrissnell/pistation/internal/controllers/dailysummary"
	"github.com/chrissnell/pistation/internal/controllers/status"
	"github.com/chrissnell/pistation/pkg/config"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// NewControllerManager creates a new controller manager
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, c *config.ConfigData, svc *controllers.Services) (ControllerManager, error) {
	cm := &controllerManager{
		ctx:         ctx,
		wg:          wg,
		svc:         svc,
		logger:      svc.Logger,
		controllers: make([]Controller, 0),
	}

	for _, con := range c.Controllers {
		controller, err := cm.createController(con)
		if err != nil {
			return nil, fmt.Errorf("error creating controller: %v", err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	return cm, nil
}

type controllerManager struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	svc         *controllers.Services
	logger      *zap.SugaredLogger
	controllers []Controller
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}

// createController creates a controller based on the controller configuration
func (cm *controllerManager) createController(cc config.ControllerData) (Controller, error) {
	switch cc.Type {
	case "cloudupload":
		return cloudupload.NewController(cm.ctx, cm.wg, cm.svc, cc)
	case "dailysummary":
		return dailysummary.NewController(cm.ctx, cm.wg, cm.svc, nil), nil
	case "status":
		return status.NewController(cm.ctx, cm.wg, cm.svc, cc)
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}
