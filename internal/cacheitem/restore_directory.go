package cacheitem

import (
	"archive/tar"
	"os"
	"path/filepath"
	"strings"

	"github.com/mason-build/mason/internal/turbopath"
)

// cachedDirTree maintains an lstat cache for the directory tree
// restored so far, under the fast-path assumptions documented on
// Restore: all directories are enumerated in the tar and entries
// arrive depth-first. prefix holds the path segments of the most
// recently restored directory; anchorAtDepth holds the resolved
// (symlink-checked) AbsoluteSystemPath at each depth of that prefix,
// so anchorAtDepth[i] is the resolved ancestor for prefix[:i].
type cachedDirTree struct {
	anchorAtDepth []turbopath.AbsoluteSystemPath
	prefix        []turbopath.RelativeSystemPath
}

// getStartingPoint finds the deepest cached ancestor of path and
// returns its resolved anchor plus the path segments still needing
// resolution below it. Violating the depth-first assumption just
// means common is smaller (possibly 0), never incorrect.
func (tree *cachedDirTree) getStartingPoint(path turbopath.AnchoredSystemPath) (turbopath.AbsoluteSystemPath, []turbopath.RelativeSystemPath) {
	anchor, remaining, _ := tree.match(path)
	return anchor, remaining
}

func (tree *cachedDirTree) match(path turbopath.AnchoredSystemPath) (turbopath.AbsoluteSystemPath, []turbopath.RelativeSystemPath, int) {
	rawSegments := strings.Split(path.ToString(), string(os.PathSeparator))
	segments := make([]turbopath.RelativeSystemPath, len(rawSegments))
	for i, s := range rawSegments {
		segments[i] = turbopath.RelativeSystemPath(s)
	}

	common := 0
	for common < len(tree.prefix) && common < len(segments) && tree.prefix[common] == segments[common] {
		common++
	}
	return tree.anchorAtDepth[common], segments[common:], common
}

// record updates the cache to reflect that processedName now exists
// on disk, with anchorsAtDepth holding the resolved anchor for each
// of its segments beyond the matchedLen common prefix.
func (tree *cachedDirTree) record(matchedLen int, segments []turbopath.RelativeSystemPath, anchorsAtDepth []turbopath.AbsoluteSystemPath) {
	newPrefix := append(append([]turbopath.RelativeSystemPath{}, tree.prefix[:matchedLen]...), segments...)
	newAnchorAtDepth := append(append([]turbopath.AbsoluteSystemPath{}, tree.anchorAtDepth[:matchedLen+1]...), anchorsAtDepth...)
	tree.prefix = newPrefix
	tree.anchorAtDepth = newAnchorAtDepth
}

// restoreDirectory restores a directory.
func restoreDirectory(dirCache *cachedDirTree, anchor turbopath.AbsoluteSystemPath, header *tar.Header) (turbopath.AnchoredSystemPath, error) {
	processedName, err := canonicalizeName(header.Name)
	if err != nil {
		return "", err
	}

	// We need to traverse `processedName` from base to root split at
	// `os.Separator` to make sure we don't end up following a symlink
	// outside of the restore path.

	// Create the directory.
	if err := safeMkdirAll(dirCache, anchor, processedName, header.Mode); err != nil {
		return "", err
	}

	// Directories report back with their trailing separator, the same
	// shape the archive-internal name carries.
	return turbopath.AnchoredSystemPath(processedName.ToString() + string(os.PathSeparator)), nil
}

// safeMkdirAll creates all directories, assuming that the leaf node is a directory.
func safeMkdirAll(dirCache *cachedDirTree, anchor turbopath.AbsoluteSystemPath, processedName turbopath.AnchoredSystemPath, mode int64) error {
	// Consult the cache for the deepest ancestor already resolved, and
	// only check segments below it for symlink traversal.
	calculatedAnchor, pathSegments, matchedLen := dirCache.match(processedName)

	anchorsAtDepth := make([]turbopath.AbsoluteSystemPath, 0, len(pathSegments))
	var checkPathErr error
	for _, segment := range pathSegments {
		calculatedAnchor, checkPathErr = checkPath(anchor, calculatedAnchor, segment)
		// We hit an existing directory or absolute path that was invalid.
		if checkPathErr != nil {
			return checkPathErr
		}
		anchorsAtDepth = append(anchorsAtDepth, calculatedAnchor)

		// Otherwise we continue and check the next segment.
	}

	// If we have made it here we know that it is safe to call os.MkdirAll
	// on the Join of anchor and processedName.
	//
	// This could _still_ error, but we don't care.
	if err := processedName.RestoreAnchor(anchor).MkdirAll(os.FileMode(mode)); err != nil {
		return err
	}

	dirCache.record(matchedLen, pathSegments, anchorsAtDepth)
	return nil
}

// checkPath ensures that the resolved path (if restoring symlinks).
// It makes sure to never traverse outside of the anchor.
func checkPath(originalAnchor turbopath.AbsoluteSystemPath, accumulatedAnchor turbopath.AbsoluteSystemPath, segment turbopath.RelativeSystemPath) (turbopath.AbsoluteSystemPath, error) {
	// Check if the segment itself is sneakily an absolute path...
	// (looking at you, Windows. CON, AUX...)
	if filepath.IsAbs(segment.ToString()) {
		return "", errTraversal
	}

	// Find out if this portion of the path is a symlink.
	combinedPath := accumulatedAnchor.Join(segment)
	fileInfo, err := combinedPath.Lstat()

	// Getting an error here means we failed to stat the path.
	// Assume that means we're safe and continue.
	if err != nil {
		return combinedPath, nil
	}

	// Find out if we have a symlink.
	isSymlink := fileInfo.Mode()&os.ModeSymlink != 0

	// If we don't have a symlink it's safe.
	if !isSymlink {
		return combinedPath, nil
	}

	// Check to see if the symlink targets outside of the originalAnchor.
	// We don't do eval symlinks because we could find ourself in a totally
	// different place.

	// 1. Get the target.
	linkTarget, readLinkErr := combinedPath.Readlink()
	if readLinkErr != nil {
		return "", readLinkErr
	}

	// 2. See if the target is absolute.
	if filepath.IsAbs(linkTarget) {
		if strings.HasPrefix(linkTarget, originalAnchor.ToString()) {
			return turbopath.AbsoluteSystemPath(linkTarget), nil
		}
		return "", errTraversal
	}

	// 3. Target is relative (or absolute Windows on a Unix device)
	computedTarget := filepath.Join(accumulatedAnchor.ToString(), linkTarget)
	if strings.HasPrefix(computedTarget, originalAnchor.ToString()) {
		return turbopath.AbsoluteSystemPath(computedTarget), nil
	}

	return "", errTraversal
}
