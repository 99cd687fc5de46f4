package services

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	model "github.com/afuentesm/NormaTrack/models"
)

// UploadEvidence stores the file in the evidence bucket and attaches it to
// the given requirement/year/month as PENDING evidence. Uploading over
// rejected evidence starts a fresh review cycle.
func (s *TrackerService) UploadEvidence(id string, year, month int, file multipart.File, header *multipart.FileHeader, uploadedBy string) (*model.Requirement, error) {
	log.Printf("UploadEvidence: requirement=%s year=%d month=%d file=%s size=%d",
		id, year, month, header.Filename, header.Size)

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	fileURL, err := s.storeEvidenceFile(fileBytes, id, year, header)
	if err != nil {
		return nil, err
	}

	return s.attachEvidence(id, year, month, model.Evidence{
		Type:       model.EvidenceFile,
		URL:        fileURL,
		FileName:   header.Filename,
		UploadedBy: uploadedBy,
	})
}

// LinkEvidence attaches an external link as PENDING evidence; nothing is
// uploaded to storage.
func (s *TrackerService) LinkEvidence(id string, year, month int, url, uploadedBy string) (*model.Requirement, error) {
	if url == "" {
		return nil, fmt.Errorf("evidence link URL is required")
	}
	return s.attachEvidence(id, year, month, model.Evidence{
		Type:       model.EvidenceLink,
		URL:        url,
		UploadedBy: uploadedBy,
	})
}

// storeEvidenceFile uploads the raw bytes to the S3 bucket and returns the
// public download URL.
func (s *TrackerService) storeEvidenceFile(fileBytes []byte, requirementID string, year int, header *multipart.FileHeader) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("%w: evidence storage is not configured", model.ErrTransport)
	}

	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		return "", fmt.Errorf("%w: bucket name not configured", model.ErrTransport)
	}

	key := fmt.Sprintf("%s/%d/%d-%s", requirementID, year, time.Now().Unix(), header.Filename)
	uploadInput := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(fileBytes),
		ACL:         aws.String("public-read"),
		ContentType: aws.String(header.Header.Get("Content-Type")),
	}

	if _, err := s.s3Client.PutObject(uploadInput); err != nil {
		log.Printf("[storeEvidenceFile] S3 upload error: %v", err)
		return "", fmt.Errorf("%w: failed to upload evidence to S3: %w", model.ErrTransport, err)
	}

	fileURL := fmt.Sprintf("%s/object/public/%s/%s", os.Getenv("SUPABASE_S3_URL"), bucket, key)
	log.Printf("Evidence stored at: %s", fileURL)
	return fileURL, nil
}

// attachEvidence mutates the target execution record and persists the plan.
// The plan entry becomes durable here if it only existed as a read-time
// projection so far.
func (s *TrackerService) attachEvidence(id string, year, month int, ev model.Evidence) (*model.Requirement, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: requirement id is required", model.ErrInvalidTarget)
	}
	if month < 0 || month >= model.MonthsPerYear {
		return nil, fmt.Errorf("%w: month %d out of range", model.ErrInvalidTarget, month)
	}

	req, err := s.GetRequirement(id)
	if err != nil {
		return nil, err
	}
	plan, err := req.PlanForYear(year)
	if err != nil {
		return nil, err
	}
	plan[month].AttachEvidence(ev)
	if err := req.SetPlan(year, plan); err != nil {
		return nil, err
	}
	if err := s.savePlans(req); err != nil {
		return nil, err
	}
	log.Printf("Evidence attached to requirement %s year %d month %d (status %s)",
		id, year, month, plan[month].Evidence.Status)

	s.notifyChange(id)
	if err := s.broadcastRequirements(); err != nil {
		log.Printf("[attachEvidence] broadcast failed: %v", err)
	}
	return req, nil
}

// ApproveEvidence moves the evidence on one execution record to APPROVED.
func (s *TrackerService) ApproveEvidence(id string, year, month int, approvedBy, comment string) (*model.Requirement, error) {
	return s.reviewEvidence(id, year, month, func(ev *model.Evidence) error {
		return ev.Approve(approvedBy, comment)
	})
}

// RejectEvidence moves the evidence on one execution record to REJECTED.
// The reviewer comment is mandatory.
func (s *TrackerService) RejectEvidence(id string, year, month int, comment string) (*model.Requirement, error) {
	return s.reviewEvidence(id, year, month, func(ev *model.Evidence) error {
		return ev.Reject(comment)
	})
}

func (s *TrackerService) reviewEvidence(id string, year, month int, transition func(*model.Evidence) error) (*model.Requirement, error) {
	if month < 0 || month >= model.MonthsPerYear {
		return nil, fmt.Errorf("%w: month %d out of range", model.ErrInvalidTarget, month)
	}
	req, err := s.GetRequirement(id)
	if err != nil {
		return nil, err
	}
	plan, ok, err := req.StoredPlan(year)
	if err != nil {
		return nil, err
	}
	if !ok || plan[month].Evidence == nil {
		return nil, fmt.Errorf("evidence for requirement %s year %d month %d: %w",
			id, year, month, model.ErrNotFound)
	}
	if err := transition(plan[month].Evidence); err != nil {
		return nil, err
	}
	if err := req.SetPlan(year, plan); err != nil {
		return nil, err
	}
	if err := s.savePlans(req); err != nil {
		return nil, err
	}
	log.Printf("Evidence on requirement %s year %d month %d moved to %s",
		id, year, month, plan[month].Evidence.Status)

	s.notifyChange(id)
	if err := s.broadcastRequirements(); err != nil {
		log.Printf("[reviewEvidence] broadcast failed: %v", err)
	}
	return req, nil
}
