//go:build deepstream

package nvmeta

/*
#cgo pkg-config: gstreamer-1.0
#cgo CFLAGS: -I/opt/nvidia/deepstream/deepstream/sources/includes
#cgo LDFLAGS: -L/opt/nvidia/deepstream/deepstream/lib -lnvdsgst_meta -lnvds_meta -Wl,-rpath,/opt/nvidia/deepstream/deepstream/lib

#include <gst/gst.h>
#include "gstnvdsmeta.h"
#include "nvdsmeta.h"

static NvDsBatchMeta *ds_batch_meta_direct(void *buf) {
	return gst_buffer_get_nvds_batch_meta((GstBuffer *)buf);
}

static NvDsBatchMeta *ds_batch_meta_iterate(void *buf) {
	gpointer state = NULL;
	GstMeta *meta;
	GType api = NVDS_META_API_TYPE;

	while ((meta = gst_buffer_iterate_meta((GstBuffer *)buf, &state)) != NULL) {
		if (meta->info->api != api) {
			continue;
		}
		NvDsMeta *dsmeta = (NvDsMeta *)meta;
		if (dsmeta->meta_type == NVDS_BATCH_GST_META) {
			return (NvDsBatchMeta *)dsmeta->meta_data;
		}
	}
	return NULL;
}

static GList *ds_frame_list(NvDsBatchMeta *b) { return b->frame_meta_list; }
static GList *ds_object_list(NvDsFrameMeta *f) { return f->obj_meta_list; }
static GList *ds_next(GList *l) { return l->next; }
static void *ds_data(GList *l) { return l->data; }
*/
import "C"

import "unsafe"

const deepstreamBuild = true

// directReader uses gst_buffer_get_nvds_batch_meta.
type directReader struct{}

func (directReader) Name() string { return "gst_buffer_get_nvds_batch_meta" }

func (directReader) ReadBatch(buf unsafe.Pointer) (*BatchMeta, error) {
	if buf == nil {
		return nil, ErrNilBuffer
	}
	return copyBatch(C.ds_batch_meta_direct(buf)), nil
}

// iterateReader walks the buffer's GstMeta list for NVDS_BATCH_GST_META.
type iterateReader struct{}

func (iterateReader) Name() string { return "gst_buffer_iterate_meta" }

func (iterateReader) ReadBatch(buf unsafe.Pointer) (*BatchMeta, error) {
	if buf == nil {
		return nil, ErrNilBuffer
	}
	return copyBatch(C.ds_batch_meta_iterate(buf)), nil
}

func platformReaders() []Reader {
	return []Reader{directReader{}, iterateReader{}}
}

// copyBatch copies frame and object metadata under the batch meta lock.
func copyBatch(batch *C.NvDsBatchMeta) *BatchMeta {
	if batch == nil {
		return nil
	}

	C.nvds_acquire_meta_lock(batch)
	defer C.nvds_release_meta_lock(batch)

	out := &BatchMeta{}
	for l := C.ds_frame_list(batch); l != nil; l = C.ds_next(l) {
		fm := (*C.NvDsFrameMeta)(C.ds_data(l))
		if fm == nil {
			continue
		}

		frame := FrameMeta{
			FrameNum: int(fm.frame_num),
			SourceID: uint32(fm.source_id),
			BatchID:  uint32(fm.batch_id),
			PTS:      uint64(fm.buf_pts),
		}

		for ol := C.ds_object_list(fm); ol != nil; ol = C.ds_next(ol) {
			obj := (*C.NvDsObjectMeta)(C.ds_data(ol))
			if obj == nil {
				continue
			}
			frame.Objects = append(frame.Objects, ObjectMeta{
				ClassID:    int(obj.class_id),
				ObjectID:   uint64(obj.object_id),
				Confidence: float32(obj.confidence),
				Left:       float32(obj.rect_params.left),
				Top:        float32(obj.rect_params.top),
				Width:      float32(obj.rect_params.width),
				Height:     float32(obj.rect_params.height),
				Label:      C.GoString(&obj.obj_label[0]),
			})
		}

		out.Frames = append(out.Frames, frame)
	}

	return out
}
