//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import (
	"errors"

	"github.com/rs/zerolog"
)

const (
	PermissionNotDetermined = 0
	PermissionRestricted    = 1
	PermissionDenied        = 2
	PermissionAuthorized    = 3
)

var errMicrophoneDenied = errors.New("microphone permission not granted")

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// EnsureMicrophone triggers the system permission dialog when capture has
// not been authorized yet. Only the portaudio backend needs it; the sound
// server owns the device for pulse captures.
func EnsureMicrophone(log zerolog.Logger) error {
	status := CheckMicrophone()
	if status == PermissionAuthorized {
		return nil
	}

	log.Warn().Int("status", status).Msg("Microphone permission required")
	if status == PermissionNotDetermined {
		C.requestMicrophonePermission()
	}
	return errMicrophoneDenied
}
