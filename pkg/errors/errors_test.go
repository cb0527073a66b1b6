// Copyright (c) 2026 The Nanoev Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusInvalidArg, StatusOf(ErrBusy))
	assert.Equal(t, StatusInvalidArg, StatusOf(fmt.Errorf("submit: %w", ErrInvalidState)))
	assert.Equal(t, StatusFail, StatusOf(ErrClosed))
	assert.Equal(t, StatusOutOfMemory, StatusOf(ErrOutOfMemory))
	assert.Equal(t, StatusFail, StatusOf(errors.New("boom")))
	assert.Equal(t, "access denied", StatusAccessDenied.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	cases := []struct {
		errno  syscall.Errno
		status Status
	}{
		{syscall.EINVAL, StatusInvalidArg},
		{syscall.EAFNOSUPPORT, StatusInvalidArg},
		{syscall.EACCES, StatusAccessDenied},
		{syscall.EPERM, StatusAccessDenied},
		{syscall.ENOMEM, StatusOutOfMemory},
		{syscall.ENOBUFS, StatusOutOfMemory},
		{syscall.ECONNREFUSED, StatusFail},
		{syscall.ECONNRESET, StatusFail},
	}
	for _, c := range cases {
		err := Classify(os.NewSyscallError("connect", c.errno))
		assert.Equal(t, c.status, StatusOf(err), c.errno.Error())
		assert.ErrorIs(t, err, c.errno)
	}

	assert.Same(t, ErrBusy, Classify(ErrBusy))
	assert.ErrorIs(t, Classify(errors.New("boom")), ErrFail)
}
