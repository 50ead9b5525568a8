// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL FUNCTION MANAGEMENT
// =============================================================================

// cancelManager holds the cancel function of the send in progress. A send
// blocks while its room joins and settles; cancelling it abandons the send
// before send_message goes out.
//
// Models hold it by pointer because Bubble Tea copies the model on update.
type cancelManager struct {
	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// set stores fn, cancelling any previous function.
func (cm *cancelManager) set(fn context.CancelFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
	}
	cm.cancelFunc = fn
}

// cancel invokes and clears the stored function. Safe to call repeatedly.
func (cm *cancelManager) cancel() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc == nil {
		return false
	}
	cm.cancelFunc()
	cm.cancelFunc = nil
	return true
}

// =============================================================================
// MODEL METHODS
// =============================================================================

func (m *Model) setCancelFunc(fn context.CancelFunc) {
	m.cancelMgr.set(fn)
}

// cancelSend abandons a send still waiting on its room.
func (m *Model) cancelSend() bool {
	return m.cancelMgr.cancel()
}
