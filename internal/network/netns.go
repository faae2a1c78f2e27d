package network

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netns"
)

// NetnsManager runs work inside another network namespace. tc, ip and iptables
// children inherit the namespace of the locked OS thread that spawns them.
type NetnsManager struct {
	log logrus.FieldLogger
}

// NewNetnsManager creates a new network namespace manager
func NewNetnsManager(log logrus.FieldLogger) *NetnsManager {
	return &NetnsManager{
		log: log.WithField("package", "network.netns"),
	}
}

// ExecuteInNamespace runs fn with the calling goroutine's thread switched into nsPath.
// An empty nsPath runs fn in the current namespace.
func (n *NetnsManager) ExecuteInNamespace(nsPath string, fn func() error) (err error) {
	if nsPath == "" {
		return fn()
	}

	if _, statErr := os.Stat(nsPath); os.IsNotExist(statErr) {
		return fmt.Errorf("namespace path %s does not exist: %w", nsPath, statErr)
	}

	runtime.LockOSThread()
	// The thread stays locked, and is discarded with the goroutine, if the
	// original namespace cannot be restored.
	unlock := true
	defer func() {
		if unlock {
			runtime.UnlockOSThread()
		}
	}()

	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get current namespace: %w", err)
	}
	defer n.closeHandle(origin, "origin")

	target, err := netns.GetFromPath(nsPath)
	if err != nil {
		return fmt.Errorf("failed to open namespace %s: %w", nsPath, err)
	}
	defer n.closeHandle(target, "target")

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("failed to set namespace %s: %w", nsPath, err)
	}
	n.log.WithField("namespace", nsPath).Debug("Entered network namespace")

	defer func() {
		if restoreErr := netns.Set(origin); restoreErr != nil {
			unlock = false
			err = errors.Join(err, fmt.Errorf("failed to restore original namespace: %w", restoreErr))
			return
		}
		n.log.WithField("namespace", nsPath).Debug("Restored original network namespace")
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in namespace function: %v", r)
		}
	}()

	return fn()
}

func (n *NetnsManager) closeHandle(h netns.NsHandle, which string) {
	if err := h.Close(); err != nil {
		n.log.WithError(err).WithField("handle", which).Debug("Failed to close namespace handle")
	}
}
