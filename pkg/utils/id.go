package utils

import "github.com/google/uuid"

// GenConvID returns a new opaque conversation id.
func GenConvID() string { return "conv-" + uuid.NewString() }

// GenMsgID returns a new opaque message id.
func GenMsgID() string { return "msg-" + uuid.NewString() }

// GenNotifID returns a new opaque notification id.
func GenNotifID() string { return "notif-" + uuid.NewString() }
